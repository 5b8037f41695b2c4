package inspect

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

// maxBlobDisplay bounds the bytes shown for byte buffers.
const maxBlobDisplay = 16

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes type, access, and domain information
	ShowMetadata bool

	// ShowHidden includes hidden nodes in trees
	ShowHidden bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		IndentWidth:  2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatValue formats a value for display, followed by its unit if any.
func (f *Formatter) FormatValue(v value.Value, unit string) string {
	var s string
	if v.Type() == value.TypeBytes {
		b, _ := v.ToBytes()
		if len(b) > maxBlobDisplay {
			s = fmt.Sprintf("0x%s... (%d bytes)", hex.EncodeToString(b[:maxBlobDisplay]), len(b))
		} else {
			s = "0x" + hex.EncodeToString(b)
		}
	} else {
		s = v.String()
	}
	if unit != "" && v.Type() != value.TypeImpulse {
		s += " " + unit
	}
	return s
}

// FormatParameter formats one parameter on a single line:
// address = value [unit] (type, access, bounding domain, flags).
func (f *Formatter) FormatParameter(p *model.Parameter) string {
	var sb strings.Builder
	sb.WriteString(p.Address())
	sb.WriteString(" = ")
	sb.WriteString(f.FormatValue(p.Value(), p.Unit()))
	if f.ShowMetadata {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(f.metadata(p), ", "))
		sb.WriteString(")")
	}
	return sb.String()
}

func (f *Formatter) metadata(p *model.Parameter) []string {
	meta := []string{p.Type().String(), p.Access().String()}
	if d := p.Domain(); !d.IsZero() {
		meta = append(meta, FormatDomain(d, p.Bounding()))
	}
	if p.Muted() {
		meta = append(meta, "muted")
	}
	if p.Disabled() {
		meta = append(meta, "disabled")
	}
	if p.Critical() {
		meta = append(meta, "critical")
	}
	if p.RepetitionFilter() {
		meta = append(meta, "no-repeat")
	}
	return meta
}

// FormatDomain formats a domain with its bounding mode, e.g. "clip [0, 1]".
func FormatDomain(d domain.Domain, mode domain.BoundingMode) string {
	if d.IsZero() {
		return "none"
	}
	return mode.String() + " " + d.String()
}

// FormatTree formats n and its subtree, one node per line. Parameters
// show their value and metadata.
func (f *Formatter) FormatTree(n model.Node) string {
	var sb strings.Builder
	f.writeNode(&sb, n, 0)
	return sb.String()
}

func (f *Formatter) writeNode(sb *strings.Builder, n model.Node, depth int) {
	name := n.Name()
	if n.IsRoot() {
		name = "/"
	}
	line := name
	if p, ok := n.Parameter(); ok {
		line += " = " + f.FormatValue(p.Value(), p.Unit())
		if f.ShowMetadata {
			line += " (" + strings.Join(f.metadata(p), ", ") + ")"
		}
	}
	if desc, ok := n.Description(); ok && f.ShowMetadata {
		line += "  # " + desc
	}
	sb.WriteString(f.Indent(depth, line))
	sb.WriteString("\n")

	for _, c := range n.Children() {
		if c.Hidden() && !f.ShowHidden {
			continue
		}
		f.writeNode(sb, c, depth+1)
	}
}

// FormatAttribute formats one node attribute for display. The boolean is
// false when the node does not carry it.
func FormatAttribute(n model.Node, attr string) (string, bool) {
	p, hasParam := n.Parameter()
	switch attr {
	case AttrValue:
		if !hasParam {
			return "", false
		}
		return NewFormatter().FormatValue(p.Value(), ""), true
	case AttrType:
		if !hasParam {
			return "", false
		}
		return p.Type().String(), true
	case AttrAccess:
		if !hasParam {
			return "", false
		}
		return p.Access().String(), true
	case AttrBounding:
		if !hasParam {
			return "", false
		}
		return p.Bounding().String(), true
	case AttrDomain:
		if !hasParam || p.Domain().IsZero() {
			return "", false
		}
		return p.Domain().String(), true
	case AttrUnit:
		if !hasParam || p.Unit() == "" {
			return "", false
		}
		return p.Unit(), true
	case AttrMuted:
		return flag(hasParam, hasParam && p.Muted())
	case AttrDisabled:
		return flag(hasParam, hasParam && p.Disabled())
	case AttrCritical:
		return flag(hasParam, hasParam && p.Critical())
	case AttrRepetitionFilter:
		return flag(hasParam, hasParam && p.RepetitionFilter())
	case AttrDescription:
		return n.Description()
	case AttrTags:
		tags := n.Tags()
		return strings.Join(tags, ", "), len(tags) > 0
	case AttrExtendedType:
		return n.ExtendedType()
	case AttrHidden:
		return flag(true, n.Hidden())
	case AttrRefreshRate:
		r, ok := n.RefreshRate()
		return fmt.Sprintf("%d ms", r), ok
	case AttrPriority:
		pr, ok := n.Priority()
		return fmt.Sprint(pr), ok
	case AttrStepSize:
		s, ok := n.StepSize()
		return fmt.Sprint(s), ok
	case AttrDefault:
		v, ok := n.DefaultValue()
		return v.String(), ok
	}
	return "", false
}

func flag(present, on bool) (string, bool) {
	if !present {
		return "", false
	}
	if on {
		return "true", true
	}
	return "false", true
}
