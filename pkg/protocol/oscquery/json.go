package oscquery

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

// Access codes of the ACCESS attribute.
const (
	accessNone  = 0
	accessRead  = 1
	accessWrite = 2
	accessBoth  = 3
)

// Attribute names.
const (
	AttrFullPath     = "FULL_PATH"
	AttrContents     = "CONTENTS"
	AttrType         = "TYPE"
	AttrValue        = "VALUE"
	AttrRange        = "RANGE"
	AttrAccess       = "ACCESS"
	AttrClipMode     = "CLIPMODE"
	AttrUnit         = "UNIT"
	AttrDescription  = "DESCRIPTION"
	AttrTags         = "TAGS"
	AttrExtendedType = "EXTENDED_TYPE"
	AttrCritical     = "CRITICAL"
	AttrHidden       = "HIDDEN"
	AttrRefreshRate  = "REFRESH_RATE"
	AttrPriority     = "PRIORITY"
	AttrStepSize     = "STEP_SIZE"
	AttrDefaultValue = "DEFAULT_VALUE"
	AttrHostInfo     = "HOST_INFO"
)

var knownAttributes = map[string]bool{
	AttrFullPath: true, AttrContents: true, AttrType: true, AttrValue: true,
	AttrRange: true, AttrAccess: true, AttrClipMode: true, AttrUnit: true,
	AttrDescription: true, AttrTags: true, AttrExtendedType: true,
	AttrCritical: true, AttrHidden: true, AttrRefreshRate: true,
	AttrPriority: true, AttrStepSize: true, AttrDefaultValue: true,
}

// Node is the JSON description of one node.
type Node struct {
	FullPath     string           `json:"FULL_PATH"`
	Contents     map[string]*Node `json:"CONTENTS,omitempty"`
	Type         string           `json:"TYPE,omitempty"`
	Value        []any            `json:"VALUE,omitempty"`
	Range        []Range          `json:"RANGE,omitempty"`
	Access       *int             `json:"ACCESS,omitempty"`
	ClipMode     []string         `json:"CLIPMODE,omitempty"`
	Unit         []string         `json:"UNIT,omitempty"`
	Description  string           `json:"DESCRIPTION,omitempty"`
	Tags         []string         `json:"TAGS,omitempty"`
	ExtendedType []string         `json:"EXTENDED_TYPE,omitempty"`
	Critical     bool             `json:"CRITICAL,omitempty"`
	Hidden       bool             `json:"HIDDEN,omitempty"`
	RefreshRate  *int32           `json:"REFRESH_RATE,omitempty"`
	Priority     *float32         `json:"PRIORITY,omitempty"`
	StepSize     *float32         `json:"STEP_SIZE,omitempty"`
	DefaultValue []any            `json:"DEFAULT_VALUE,omitempty"`
}

// Range is one RANGE entry.
type Range struct {
	Min  any   `json:"MIN,omitempty"`
	Max  any   `json:"MAX,omitempty"`
	Vals []any `json:"VALS,omitempty"`
}

// HostInfo is the ?HOST_INFO reply.
type HostInfo struct {
	Name         string          `json:"NAME"`
	OSCIP        string          `json:"OSC_IP,omitempty"`
	OSCPort      int             `json:"OSC_PORT"`
	OSCTransport string          `json:"OSC_TRANSPORT"`
	WSIP         string          `json:"WS_IP,omitempty"`
	WSPort       int             `json:"WS_PORT,omitempty"`
	Extensions   map[string]bool `json:"EXTENSIONS"`
}

// extensions lists the optional attributes and features served.
func extensions() map[string]bool {
	ext := map[string]bool{
		"LISTEN":        true,
		"PATH_ADDED":    true,
		"PATH_REMOVED":  true,
		"PATH_CHANGED":  true,
		"OSC_STREAMING": true,
		"HTML":          false,
	}
	for a := range knownAttributes {
		ext[a] = true
	}
	return ext
}

// typeTag returns the TYPE string for v. Vectors are runs of 'f', lists
// are bracketed.
func typeTag(v value.Value) string {
	switch v.Type() {
	case value.TypeImpulse:
		return "I"
	case value.TypeInt:
		return "i"
	case value.TypeFloat:
		return "f"
	case value.TypeBool:
		return "T"
	case value.TypeChar:
		return "c"
	case value.TypeString:
		return "s"
	case value.TypeBytes:
		return "b"
	case value.TypeVec2f:
		return "ff"
	case value.TypeVec3f:
		return "fff"
	case value.TypeVec4f:
		return "ffff"
	case value.TypeList:
		elems, _ := v.ToList()
		var b strings.Builder
		b.WriteByte('[')
		for _, e := range elems {
			b.WriteString(typeTag(e))
		}
		b.WriteByte(']')
		return b.String()
	}
	return ""
}

// parseTypeTag returns the parameter type for a TYPE string.
func parseTypeTag(tag string) (value.Type, error) {
	switch tag {
	case "I", "N":
		return value.TypeImpulse, nil
	case "i", "h":
		return value.TypeInt, nil
	case "f", "d":
		return value.TypeFloat, nil
	case "T", "F":
		return value.TypeBool, nil
	case "c":
		return value.TypeChar, nil
	case "s", "S":
		return value.TypeString, nil
	case "b":
		return value.TypeBytes, nil
	case "ff":
		return value.TypeVec2f, nil
	case "fff":
		return value.TypeVec3f, nil
	case "ffff":
		return value.TypeVec4f, nil
	}
	if strings.HasPrefix(tag, "[") || len(tag) > 1 {
		return value.TypeList, nil
	}
	return value.TypeImpulse, fmt.Errorf("%w: unknown TYPE %q", value.ErrInvalidArgument, tag)
}

// jsonElement converts a scalar or list value to its JSON form.
func jsonElement(v value.Value) any {
	switch v.Type() {
	case value.TypeInt:
		i, _ := v.ToInt()
		return i
	case value.TypeFloat:
		f, _ := v.ToFloat()
		return f
	case value.TypeBool:
		b, _ := v.ToBool()
		return b
	case value.TypeChar:
		c, _ := v.ToChar()
		return string(rune(c))
	case value.TypeString:
		s, _ := v.ToString()
		return s
	case value.TypeBytes:
		b, _ := v.ToBytes()
		return base64.StdEncoding.EncodeToString(b)
	case value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		fs, _ := v.ToFloats()
		out := make([]any, len(fs))
		for i, f := range fs {
			out[i] = f
		}
		return out
	case value.TypeList:
		elems, _ := v.ToList()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = jsonElement(e)
		}
		return out
	}
	return nil
}

// jsonValue returns the VALUE array for v. Vectors spread over the array.
func jsonValue(v value.Value) []any {
	switch v.Type() {
	case value.TypeImpulse:
		return nil
	case value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		return jsonElement(v).([]any)
	}
	return []any{jsonElement(v)}
}

// valueFromJSON decodes a VALUE array for a parameter of type t.
func valueFromJSON(t value.Type, raw []any) (value.Value, error) {
	switch t {
	case value.TypeImpulse:
		return value.Impulse(), nil
	case value.TypeVec2f, value.TypeVec3f, value.TypeVec4f:
		fs := make([]float32, len(raw))
		for i, r := range raw {
			f, ok := r.(float64)
			if !ok {
				return value.Value{}, fmt.Errorf("%w: vector component %T", value.ErrTypeMismatch, r)
			}
			fs[i] = float32(f)
		}
		return value.FloatList(fs).Convert(t)
	}
	if len(raw) == 0 {
		return value.Zero(t), nil
	}
	v, err := elementFromJSON(raw[0])
	if err != nil {
		return value.Value{}, err
	}
	switch t {
	case value.TypeBytes:
		s, err := v.ToString()
		if err != nil {
			return value.Value{}, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: %w", value.ErrTypeMismatch, err)
		}
		return value.Bytes(b), nil
	case value.TypeList:
		if v.Type() != value.TypeList {
			return value.List(v), nil
		}
		return v, nil
	}
	return v.Convert(t)
}

// elementFromJSON decodes one JSON element as produced by encoding/json.
func elementFromJSON(r any) (value.Value, error) {
	switch t := r.(type) {
	case nil:
		return value.Impulse(), nil
	case bool:
		return value.Bool(t), nil
	case float64:
		if t == float64(int32(t)) {
			return value.Int(int32(t)), nil
		}
		return value.Float(float32(t)), nil
	case string:
		return value.String(t), nil
	case []any:
		elems := make([]value.Value, len(t))
		for i, e := range t {
			v, err := elementFromJSON(e)
			if err != nil {
				return value.Value{}, err
			}
			elems[i] = v
		}
		return value.List(elems...), nil
	}
	return value.Value{}, fmt.Errorf("%w: JSON %T", value.ErrTypeMismatch, r)
}

func accessCode(a model.AccessMode) int {
	switch a {
	case model.AccessGet:
		return accessRead
	case model.AccessSet:
		return accessWrite
	}
	return accessBoth
}

func parseAccessCode(c int) model.AccessMode {
	switch c {
	case accessRead:
		return model.AccessGet
	case accessWrite:
		return model.AccessSet
	}
	return model.AccessBi
}

var clipModes = map[domain.BoundingMode]string{
	domain.Free: "none",
	domain.Clip: "both",
	domain.Low:  "low",
	domain.High: "high",
	domain.Wrap: "wrap",
	domain.Fold: "fold",
}

func parseClipMode(s string) domain.BoundingMode {
	for m, name := range clipModes {
		if name == s {
			return m
		}
	}
	return domain.Free
}

// ranges returns the RANGE entries of d. Vector ranges have one entry per
// component.
func ranges(d domain.Domain) []Range {
	switch d.Kind() {
	case domain.KindRange:
		var mins, maxs []any
		if lo, ok := d.Min(); ok {
			mins = jsonValue(lo)
		}
		if hi, ok := d.Max(); ok {
			maxs = jsonValue(hi)
		}
		n := max(len(mins), len(maxs))
		out := make([]Range, n)
		for i := range out {
			if i < len(mins) {
				out[i].Min = mins[i]
			}
			if i < len(maxs) {
				out[i].Max = maxs[i]
			}
		}
		return out
	case domain.KindSet:
		var vals []any
		for _, v := range d.Values() {
			vals = append(vals, jsonElement(v))
		}
		return []Range{{Vals: vals}}
	}
	return nil
}

// domainFromRanges rebuilds a domain for a parameter of type t.
func domainFromRanges(t value.Type, rs []Range) (domain.Domain, error) {
	if len(rs) == 0 {
		return domain.Domain{}, nil
	}
	if len(rs[0].Vals) > 0 {
		vals := make([]value.Value, 0, len(rs[0].Vals))
		for _, r := range rs[0].Vals {
			v, err := valueFromJSON(t, []any{r})
			if err != nil {
				return domain.Domain{}, err
			}
			vals = append(vals, v)
		}
		return domain.Set(vals...)
	}

	var mins, maxs []any
	for _, r := range rs {
		if r.Min != nil {
			mins = append(mins, r.Min)
		}
		if r.Max != nil {
			maxs = append(maxs, r.Max)
		}
	}
	d, err := domain.OpenRange(t)
	if err != nil {
		return d, err
	}
	if len(mins) == len(rs) {
		lo, err := valueFromJSON(t, mins)
		if err != nil {
			return d, err
		}
		if d, err = d.WithMin(lo); err != nil {
			return d, err
		}
	}
	if len(maxs) == len(rs) {
		hi, err := valueFromJSON(t, maxs)
		if err != nil {
			return d, err
		}
		if d, err = d.WithMax(hi); err != nil {
			return d, err
		}
	}
	return d, nil
}

// describe returns the JSON description of n. Hidden children are left
// out. recursive controls whether CONTENTS is filled.
func describe(n model.Node, recursive bool) *Node {
	out := &Node{FullPath: n.Address()}
	if desc, ok := n.Description(); ok {
		out.Description = desc
	}
	out.Tags = n.Tags()
	if ext, ok := n.ExtendedType(); ok {
		out.ExtendedType = []string{ext}
	}
	out.Hidden = n.Hidden()
	if r, ok := n.RefreshRate(); ok {
		out.RefreshRate = &r
	}
	if p, ok := n.Priority(); ok {
		out.Priority = &p
	}
	if s, ok := n.StepSize(); ok {
		out.StepSize = &s
	}
	if v, ok := n.DefaultValue(); ok {
		out.DefaultValue = jsonValue(v)
	}

	if p, ok := n.Parameter(); ok {
		v := p.Value()
		if p.Type() == value.TypeImpulse {
			out.Type = "I"
		} else if p.Type() == value.TypeList {
			out.Type = typeTag(v)
		} else {
			out.Type = typeTag(value.Zero(p.Type()))
		}
		if p.Access().Readable() {
			out.Value = jsonValue(v)
		}
		access := accessCode(p.Access())
		out.Access = &access
		out.Range = ranges(p.Domain())
		out.ClipMode = []string{clipModes[p.Bounding()]}
		if u := p.Unit(); u != "" {
			out.Unit = []string{u}
		}
		out.Critical = p.Critical()
	} else {
		access := accessNone
		out.Access = &access
	}

	if recursive {
		for _, c := range n.Children() {
			if c.Hidden() {
				continue
			}
			if out.Contents == nil {
				out.Contents = make(map[string]*Node)
			}
			out.Contents[c.Name()] = describe(c, true)
		}
	}
	return out
}

// attribute returns the JSON object answering "?<attr>" for n. The
// boolean is false when n does not carry the attribute.
func attribute(n model.Node, attr string) (map[string]json.RawMessage, bool, error) {
	data, err := json.Marshal(describe(n, attr == AttrContents))
	if err != nil {
		return nil, false, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, false, err
	}
	raw, ok := all[attr]
	if !ok {
		return nil, false, nil
	}
	return map[string]json.RawMessage{attr: raw}, true, nil
}
