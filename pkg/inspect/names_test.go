package inspect_test

import (
	"slices"
	"testing"

	"github.com/ossia-go/paramtree/pkg/inspect"
)

func TestResolveAttributeName(t *testing.T) {
	tests := []struct {
		input     string
		want      string
		wantFound bool
	}{
		{"value", inspect.AttrValue, true},
		{"VALUE", inspect.AttrValue, true},
		{" unit ", inspect.AttrUnit, true},
		{"clipmode", inspect.AttrBounding, true},
		{"rangeClipmode", inspect.AttrBounding, true},
		{"range", inspect.AttrDomain, true},
		{"rangeBounds", inspect.AttrDomain, true},
		{"dataspaceUnit", inspect.AttrUnit, true},
		{"extended-type", inspect.AttrExtendedType, true},
		{"repetition_filter", inspect.AttrRepetitionFilter, true},
		{"repetitions", inspect.AttrRepetitionFilter, true},
		{"refresh-rate", inspect.AttrRefreshRate, true},
		{"default_value", inspect.AttrDefault, true},
		{"service", inspect.AttrAccess, true},
		{"nonexistent", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, found := inspect.ResolveAttributeName(tt.input)
			if found != tt.wantFound {
				t.Errorf("ResolveAttributeName(%q) found = %v, want %v", tt.input, found, tt.wantFound)
			}
			if got != tt.want {
				t.Errorf("ResolveAttributeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAttributeNames(t *testing.T) {
	names := inspect.AttributeNames()
	if len(names) != 18 {
		t.Errorf("AttributeNames() returned %d names, want 18: %v", len(names), names)
	}
	if !slices.IsSorted(names) {
		t.Errorf("AttributeNames() not sorted: %v", names)
	}
	for _, alias := range []string{"clipmode", "range", "service"} {
		if slices.Contains(names, alias) {
			t.Errorf("AttributeNames() contains alias %q", alias)
		}
	}
}
