package inspect

import (
	"errors"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		cwd     string
		input   string
		want    Path
		wantErr error
	}{
		{
			name:  "absolute address",
			cwd:   "/",
			input: "/synth/freq",
			want:  Path{Address: "/synth/freq"},
		},
		{
			name:  "relative to cwd",
			cwd:   "/synth",
			input: "freq",
			want:  Path{Address: "/synth/freq"},
		},
		{
			name:  "dot segments",
			cwd:   "/synth/osc",
			input: "./../freq",
			want:  Path{Address: "/synth/freq"},
		},
		{
			name:  "attribute",
			cwd:   "/",
			input: "/synth/freq:unit",
			want:  Path{Address: "/synth/freq", Attribute: "unit"},
		},
		{
			name:  "attribute of cwd",
			cwd:   "/synth",
			input: ":description",
			want:  Path{Address: "/synth", Attribute: "description"},
		},
		{
			name:  "pattern",
			cwd:   "/",
			input: "/synth/*/gain",
			want:  Path{Address: "/synth/*/gain", IsPattern: true},
		},
		{
			name:  "root",
			cwd:   "/synth",
			input: "..",
			want:  Path{Address: "/"},
		},
		{
			name:    "empty",
			cwd:     "/",
			input:   "  ",
			wantErr: ErrEmptyPath,
		},
		{
			name:    "empty attribute",
			cwd:     "/",
			input:   "/synth:",
			wantErr: ErrInvalidPath,
		},
		{
			name:    "above root",
			cwd:     "/",
			input:   "../x",
			wantErr: ErrInvalidPath,
		},
		{
			name:    "double slash",
			cwd:     "/",
			input:   "/synth//freq",
			wantErr: ErrInvalidPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.cwd, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePath(%q, %q) error = %v, want %v", tt.cwd, tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q, %q) unexpected error: %v", tt.cwd, tt.input, err)
			}
			if got.Address != tt.want.Address {
				t.Errorf("Address = %q, want %q", got.Address, tt.want.Address)
			}
			if got.Attribute != tt.want.Attribute {
				t.Errorf("Attribute = %q, want %q", got.Attribute, tt.want.Attribute)
			}
			if got.IsPattern != tt.want.IsPattern {
				t.Errorf("IsPattern = %v, want %v", got.IsPattern, tt.want.IsPattern)
			}
		})
	}
}

func TestPathString(t *testing.T) {
	p, err := ParsePath("/synth", "freq:unit")
	if err != nil {
		t.Fatalf("ParsePath: %v", err)
	}
	if got := p.String(); got != "/synth/freq:unit" {
		t.Errorf("String() = %q, want %q", got, "/synth/freq:unit")
	}
	if p.Raw != "freq:unit" {
		t.Errorf("Raw = %q, want %q", p.Raw, "freq:unit")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		cwd, addr, want string
	}{
		{"/", "a", "/a"},
		{"", "a/b", "/a/b"},
		{"/a/b", "..", "/a"},
		{"/a/b", "../../c", "/c"},
		{"/a", "/x/./y", "/x/y"},
		{"/a", ".", "/a"},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.cwd, tt.addr)
		if err != nil {
			t.Errorf("Resolve(%q, %q) unexpected error: %v", tt.cwd, tt.addr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.cwd, tt.addr, got, tt.want)
		}
	}
}
