package model

import (
	"fmt"
	"regexp"
	"strings"
)

// IsPattern reports whether address contains OSC pattern characters.
func IsPattern(address string) bool {
	return strings.ContainsAny(address, "*?[]{}")
}

// CompileSegment translates one OSC address pattern segment into an
// anchored regular expression.
func CompileSegment(seg string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	inClass, inAlt := false, false
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c == '*' && !inClass:
			b.WriteString(".*")
		case c == '?' && !inClass:
			b.WriteByte('.')
		case c == '[' && !inClass:
			inClass = true
			b.WriteByte('[')
			if i+1 < len(seg) && seg[i+1] == '!' {
				b.WriteByte('^')
				i++
			}
		case c == ']' && inClass:
			inClass = false
			b.WriteByte(']')
		case c == '{' && !inClass && !inAlt:
			inAlt = true
			b.WriteString("(?:")
		case c == ',' && inAlt:
			b.WriteByte('|')
		case c == '}' && inAlt:
			inAlt = false
			b.WriteByte(')')
		case inClass && c == '-':
			b.WriteByte('-')
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if inClass || inAlt {
		return nil, fmt.Errorf("%w: unbalanced pattern %q", ErrInvalidName, seg)
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

func compilePattern(glob string) ([]*regexp.Regexp, bool, error) {
	abs := strings.HasPrefix(glob, "/")
	var out []*regexp.Regexp
	for _, seg := range strings.Split(glob, "/") {
		if seg == "" {
			continue
		}
		re, err := CompileSegment(seg)
		if err != nil {
			return nil, abs, err
		}
		out = append(out, re)
	}
	return out, abs, nil
}

// FindPattern returns the existing nodes matching glob, relative to n or
// from the root for absolute patterns, depth-first with siblings in
// creation order. A pattern that matches nothing yields an empty result.
func (n Node) FindPattern(glob string) []Node {
	if n.t == nil {
		return nil
	}
	res, abs, err := compilePattern(glob)
	if err != nil {
		return nil
	}
	t := n.t
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.lookup(n); !ok {
		return nil
	}
	start := n.idx
	if abs {
		start = rootIndex
	}
	if len(res) == 0 {
		return []Node{t.handle(start)}
	}
	var out []Node
	var walk func(idx int32, depth int)
	walk = func(idx int32, depth int) {
		for _, c := range t.slots[idx].children {
			if !res[depth].MatchString(t.slots[c].name) {
				continue
			}
			if depth == len(res)-1 {
				out = append(out, t.handle(c))
				continue
			}
			walk(c, depth+1)
		}
	}
	walk(start, 0)
	return out
}

// CreatePattern resolves glob and creates what it names. Alternatives
// ({a,b}) and positive character classes ([abc], [a-c]) expand into
// concrete names that are created when missing; "*", "?" and negated
// classes match existing children only.
func (n Node) CreatePattern(glob string) ([]Node, error) {
	if n.t == nil {
		return nil, ErrRemoved
	}
	start := n
	if strings.HasPrefix(glob, "/") {
		start = n.t.root()
	}
	var segs []string
	for _, seg := range strings.Split(glob, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidName)
	}

	current := []Node{start}
	for _, seg := range segs {
		var next []Node
		names, expandable, err := expandSegment(seg)
		if err != nil {
			return nil, err
		}
		for _, parent := range current {
			if !expandable {
				next = append(next, parent.FindPattern(seg)...)
				continue
			}
			for _, name := range names {
				child, err := parent.FindOrCreate(name)
				if err != nil {
					return nil, err
				}
				next = append(next, child)
			}
		}
		current = next
	}
	return current, nil
}

// expandSegment lists the concrete names a segment stands for. It returns
// false when the segment contains wildcards that cannot be enumerated.
func expandSegment(seg string) ([]string, bool, error) {
	if strings.ContainsAny(seg, "*?") || strings.Contains(seg, "[!") {
		return nil, false, nil
	}
	names := []string{""}
	for i := 0; i < len(seg); i++ {
		var opts []string
		switch seg[i] {
		case '{':
			end := strings.IndexByte(seg[i:], '}')
			if end < 0 {
				return nil, false, fmt.Errorf("%w: unbalanced pattern %q", ErrInvalidName, seg)
			}
			opts = strings.Split(seg[i+1:i+end], ",")
			i += end
		case '[':
			end := strings.IndexByte(seg[i:], ']')
			if end < 0 {
				return nil, false, fmt.Errorf("%w: unbalanced pattern %q", ErrInvalidName, seg)
			}
			opts = expandClass(seg[i+1 : i+end])
			i += end
		default:
			opts = []string{string(seg[i])}
		}
		grown := make([]string, 0, len(names)*len(opts))
		for _, prefix := range names {
			for _, o := range opts {
				grown = append(grown, prefix+o)
			}
		}
		names = grown
	}
	for _, name := range names {
		if err := ValidateName(name); err != nil {
			return nil, false, err
		}
	}
	return names, true, nil
}

func expandClass(class string) []string {
	var out []string
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			for c := class[i]; c <= class[i+2]; c++ {
				out = append(out, string(c))
				if c == 255 {
					break
				}
			}
			i += 2
			continue
		}
		out = append(out, string(class[i]))
	}
	return out
}
