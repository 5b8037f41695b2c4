package minuit

import (
	"fmt"
	"strings"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
	"github.com/ossia-go/paramtree/pkg/wire"
)

// Command verbs.
const (
	verbNamespace = "namespace"
	verbGet       = "get"
	verbListen    = "listen"
)

// Node kinds in namespace replies.
const (
	kindApplication = "Application"
	kindContainer   = "Container"
	kindData        = "Data"
)

// Attribute names.
const (
	attrValue       = "value"
	attrType        = "type"
	attrService     = "service"
	attrRangeBounds = "rangeBounds"
	attrClipmode    = "rangeClipmode"
	attrDescription = "description"
	attrTags        = "tags"
	attrPriority    = "priority"
	attrUnit        = "dataspaceUnit"
)

// dataAttributes are advertised for nodes carrying a parameter.
var dataAttributes = []string{
	attrValue, attrType, attrService, attrRangeBounds, attrClipmode,
	attrDescription, attrTags, attrPriority, attrUnit,
}

// command is a parsed Minuit address such as "app?namespace" or
// "app:get".
type command struct {
	app   string
	reply bool
	verb  string
}

// parseCommand splits a Minuit address. OSC paths are not commands.
func parseCommand(addr string) (command, bool) {
	if addr == "" || addr[0] == '/' {
		return command{}, false
	}
	i := strings.IndexAny(addr, "?:")
	if i <= 0 {
		return command{}, false
	}
	c := command{app: addr[:i], reply: addr[i] == ':', verb: addr[i+1:]}
	switch c.verb {
	case verbNamespace, verbGet, verbListen:
		return c, true
	}
	return command{}, false
}

func (c command) String() string {
	sep := "?"
	if c.reply {
		sep = ":"
	}
	return c.app + sep + c.verb
}

// splitTarget splits "addr:attr". The attribute defaults to value.
func splitTarget(target string) (addr, attr string) {
	if i := strings.LastIndexByte(target, ':'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, attrValue
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", wire.ErrMalformed, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, expected string", wire.ErrMalformed, i, args[i])
	}
	return s, nil
}

// nodeInfo is the content of a namespace reply.
type nodeInfo struct {
	Address    string
	Kind       string
	Nodes      []string
	Attributes []string
}

func nodeKind(n model.Node) string {
	if n.IsRoot() {
		return kindApplication
	}
	if _, ok := n.Parameter(); ok {
		return kindData
	}
	return kindContainer
}

// describe returns the namespace reply arguments for n.
func describe(n model.Node) []any {
	args := []any{n.Address(), nodeKind(n)}
	children := n.Children()
	if len(children) > 0 {
		args = append(args, "nodes={")
		for _, c := range children {
			args = append(args, c.Name())
		}
		args = append(args, "}")
	}
	if _, ok := n.Parameter(); ok {
		args = append(args, "attributes={")
		for _, a := range dataAttributes {
			args = append(args, a)
		}
		args = append(args, "}")
	}
	return args
}

// parseNodeInfo decodes namespace reply arguments.
func parseNodeInfo(args []any) (nodeInfo, error) {
	var info nodeInfo
	var err error
	if info.Address, err = stringArg(args, 0); err != nil {
		return info, err
	}
	if info.Kind, err = stringArg(args, 1); err != nil {
		return info, err
	}
	var list *[]string
	for i := 2; i < len(args); i++ {
		s, err := stringArg(args, i)
		if err != nil {
			return info, err
		}
		switch {
		case s == "nodes={":
			list = &info.Nodes
		case s == "attributes={":
			list = &info.Attributes
		case s == "}":
			list = nil
		case list != nil:
			*list = append(*list, s)
		default:
			return info, fmt.Errorf("%w: unexpected %q in namespace reply", wire.ErrMalformed, s)
		}
	}
	if list != nil {
		return info, fmt.Errorf("%w: unterminated list in namespace reply", wire.ErrMalformed)
	}
	return info, nil
}

var typeNames = map[value.Type]string{
	value.TypeImpulse: "none",
	value.TypeInt:     "integer",
	value.TypeFloat:   "decimal",
	value.TypeBool:    "boolean",
	value.TypeChar:    "string",
	value.TypeString:  "string",
	value.TypeBytes:   "generic",
	value.TypeVec2f:   "array",
	value.TypeVec3f:   "array",
	value.TypeVec4f:   "array",
	value.TypeList:    "array",
}

func typeName(t value.Type) string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "generic"
}

func parseTypeName(s string) value.Type {
	switch s {
	case "none":
		return value.TypeImpulse
	case "integer":
		return value.TypeInt
	case "decimal":
		return value.TypeFloat
	case "boolean":
		return value.TypeBool
	case "string":
		return value.TypeString
	case "generic":
		return value.TypeBytes
	}
	return value.TypeList
}

func serviceName(a model.AccessMode) string {
	switch a {
	case model.AccessGet:
		return "return"
	case model.AccessSet:
		return "message"
	}
	return "parameter"
}

func parseService(s string) model.AccessMode {
	switch s {
	case "return":
		return model.AccessGet
	case "message":
		return model.AccessSet
	}
	return model.AccessBi
}

var clipNames = map[domain.BoundingMode]string{
	domain.Free: "none",
	domain.Clip: "both",
	domain.Wrap: "wrap",
	domain.Fold: "fold",
	domain.Low:  "low",
	domain.High: "high",
}

func clipName(m domain.BoundingMode) string {
	if s, ok := clipNames[m]; ok {
		return s
	}
	return "none"
}

func parseClipName(s string) domain.BoundingMode {
	for m, name := range clipNames {
		if name == s {
			return m
		}
	}
	return domain.Free
}

// attribute returns the arguments answering a get of attr on n.
func attribute(n model.Node, attr string) ([]any, error) {
	switch attr {
	case attrDescription:
		d, _ := n.Description()
		return []any{d}, nil
	case attrTags:
		out := []any{}
		for _, t := range n.Tags() {
			out = append(out, t)
		}
		return out, nil
	case attrPriority:
		p, _ := n.Priority()
		return []any{p}, nil
	}

	p, ok := n.Parameter()
	if !ok {
		return nil, fmt.Errorf("%w: no parameter at %s", model.ErrNotFound, n.Address())
	}
	switch attr {
	case attrValue:
		return wire.ArgumentsFromValue(p.Value()), nil
	case attrType:
		return []any{typeName(p.Type())}, nil
	case attrService:
		return []any{serviceName(p.Access())}, nil
	case attrClipmode:
		return []any{clipName(p.Bounding())}, nil
	case attrUnit:
		return []any{p.Unit()}, nil
	case attrRangeBounds:
		d := p.Domain()
		lo, okLo := d.Min()
		hi, okHi := d.Max()
		if d.Kind() != domain.KindRange || !okLo || !okHi {
			return []any{}, nil
		}
		return append(wire.ArgumentsFromValue(lo), wire.ArgumentsFromValue(hi)...), nil
	}
	return nil, fmt.Errorf("%w: attribute %q", model.ErrNotFound, attr)
}
