// Package inspect provides tree inspection and attribute manipulation
// utilities for interactive tools.
//
// The inspect package offers a unified interface for:
//   - Resolving shell paths (e.g., "freq", "../osc/freq:unit") against a
//     working node
//   - Parsing value literals typed in by a user
//   - Reading and writing values and node attributes
//   - Formatting values, parameters and trees for display
package inspect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ossia-go/paramtree/pkg/model"
)

// Path errors.
var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("invalid path format")
)

// Path is a parsed shell path.
// Format: address[:attribute], where address is absolute or relative to
// the working node.
type Path struct {
	// Address is the absolute node address.
	Address string

	// Attribute is the attribute name after ':' (empty for the value).
	Attribute string

	// IsPattern reports whether Address contains OSC pattern characters.
	IsPattern bool

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses input relative to cwd.
//
// Supported formats:
//   - "/osc/freq" - absolute address
//   - "freq", "./freq", "../osc/freq" - relative to cwd
//   - "/osc/freq:unit" - one attribute of the node
//   - "/osc/*" - pattern
func ParsePath(cwd, input string) (*Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPath
	}

	p := &Path{Raw: input}
	addr := input
	if i := strings.LastIndexByte(input, ':'); i >= 0 {
		addr, p.Attribute = input[:i], input[i+1:]
		if p.Attribute == "" {
			return nil, fmt.Errorf("%w: empty attribute in %q", ErrInvalidPath, input)
		}
		if addr == "" {
			addr = "."
		}
	}

	abs, err := Resolve(cwd, addr)
	if err != nil {
		return nil, err
	}
	p.Address = abs
	p.IsPattern = model.IsPattern(abs)
	return p, nil
}

// Resolve joins a possibly relative address onto cwd and cleans "." and
// ".." segments. Going above the root fails.
func Resolve(cwd, addr string) (string, error) {
	if addr == "" {
		return "", ErrEmptyPath
	}
	if strings.Contains(addr, "//") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, addr)
	}
	if !strings.HasPrefix(addr, "/") {
		if cwd == "" {
			cwd = "/"
		}
		addr = strings.TrimSuffix(cwd, "/") + "/" + addr
	}

	var segs []string
	for _, s := range strings.Split(addr, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return "", fmt.Errorf("%w: %q leaves the root", ErrInvalidPath, addr)
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, s)
		}
	}
	return "/" + strings.Join(segs, "/"), nil
}

// String returns the path as a string.
func (p *Path) String() string {
	if p.Attribute == "" {
		return p.Address
	}
	return p.Address + ":" + p.Attribute
}
