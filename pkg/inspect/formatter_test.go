package inspect

import (
	"strings"
	"testing"

	"github.com/ossia-go/paramtree/pkg/domain"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

func newSynth(t *testing.T) *model.Device {
	t.Helper()
	dev, err := model.NewDevice("synth", nil)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	freq := mustParameter(t, dev, "/synth/freq", value.TypeFloat)
	d, err := domain.FloatRange(20, 20000)
	if err != nil {
		t.Fatalf("FloatRange: %v", err)
	}
	if err := freq.SetDomain(d); err != nil {
		t.Fatalf("SetDomain: %v", err)
	}
	freq.SetBounding(domain.Clip)
	freq.SetUnit("Hz")
	if err := freq.Push(value.Float(440)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	freq.Node().SetDescription("oscillator frequency")

	gain := mustParameter(t, dev, "/synth/gain", value.TypeFloat)
	gain.SetAccess(model.AccessGet)
	gain.SetMuted(true)

	mustParameter(t, dev, "/synth/wave", value.TypeString)
	secret, err := dev.Root().CreateChild("/synth/secret")
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	secret.SetHidden(true)
	return dev
}

func mustParameter(t *testing.T, dev *model.Device, addr string, typ value.Type) *model.Parameter {
	t.Helper()
	n, err := dev.Root().CreateChild(addr)
	if err != nil {
		t.Fatalf("CreateChild(%q): %v", addr, err)
	}
	p, err := n.CreateParameter(typ)
	if err != nil {
		t.Fatalf("CreateParameter(%q): %v", addr, err)
	}
	return p
}

func TestFormatValue(t *testing.T) {
	f := NewFormatter()

	long := make([]byte, 20)
	tests := []struct {
		name     string
		value    value.Value
		unit     string
		expected string
	}{
		{"float with unit", value.Float(440), "Hz", "440 Hz"},
		{"int without unit", value.Int(-3), "", "-3"},
		{"string", value.String("sine"), "", `"sine"`},
		{"vector", value.Vec3f(1, 0.5, 0), "", "[1, 0.5, 0]"},
		{"impulse drops unit", value.Impulse(), "Hz", "impulse"},
		{"short bytes", value.Bytes([]byte{0xca, 0xfe}), "", "0xcafe"},
		{"long bytes", value.Bytes(long), "", "0x" + strings.Repeat("00", 16) + "... (20 bytes)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.FormatValue(tt.value, tt.unit); got != tt.expected {
				t.Errorf("FormatValue(%s, %q) = %q, want %q", tt.value, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestFormatParameter(t *testing.T) {
	dev := newSynth(t)
	f := NewFormatter()

	freq, _ := dev.Root().Find("/synth/freq")
	p, _ := freq.Parameter()
	want := "/synth/freq = 440 Hz (float, bi, clip float[20, 20000])"
	if got := f.FormatParameter(p); got != want {
		t.Errorf("FormatParameter() = %q, want %q", got, want)
	}

	gain, _ := dev.Root().Find("/synth/gain")
	p, _ = gain.Parameter()
	want = "/synth/gain = 0 (float, get, muted)"
	if got := f.FormatParameter(p); got != want {
		t.Errorf("FormatParameter() = %q, want %q", got, want)
	}

	f.ShowMetadata = false
	if got := f.FormatParameter(p); got != "/synth/gain = 0" {
		t.Errorf("FormatParameter() without metadata = %q", got)
	}
}

func TestFormatTree(t *testing.T) {
	dev := newSynth(t)
	f := NewFormatter()

	got := f.FormatTree(dev.Root())
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	want := []string{
		"/",
		"  synth",
		"    freq = 440 Hz (float, bi, clip float[20, 20000])  # oscillator frequency",
		"    gain = 0 (float, get, muted)",
		`    wave = "" (string, bi)`,
	}
	if len(lines) != len(want) {
		t.Fatalf("FormatTree() has %d lines, want %d:\n%s", len(lines), len(want), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	f.ShowHidden = true
	f.ShowMetadata = false
	f.IndentWidth = 4
	got = f.FormatTree(dev.Root())
	if !strings.Contains(got, "\n        secret\n") {
		t.Errorf("FormatTree() with hidden nodes missing secret:\n%s", got)
	}
	if strings.Contains(got, "(float") {
		t.Errorf("FormatTree() without metadata shows metadata:\n%s", got)
	}
}

func TestFormatAttribute(t *testing.T) {
	dev := newSynth(t)
	freq, _ := dev.Root().Find("/synth/freq")
	synth, _ := dev.Root().Find("/synth")

	tests := []struct {
		node   model.Node
		attr   string
		want   string
		wantOK bool
	}{
		{freq, AttrValue, "440", true},
		{freq, AttrType, "float", true},
		{freq, AttrAccess, "bi", true},
		{freq, AttrBounding, "clip", true},
		{freq, AttrDomain, "float[20, 20000]", true},
		{freq, AttrUnit, "Hz", true},
		{freq, AttrMuted, "false", true},
		{freq, AttrDescription, "oscillator frequency", true},
		{freq, AttrHidden, "false", true},
		{freq, AttrRefreshRate, "", false},
		{freq, AttrTags, "", false},
		{synth, AttrValue, "", false},
		{synth, AttrCritical, "", false},
		{synth, AttrHidden, "false", true},
	}

	for _, tt := range tests {
		got, ok := FormatAttribute(tt.node, tt.attr)
		if ok != tt.wantOK {
			t.Errorf("FormatAttribute(%s, %s) ok = %v, want %v", tt.node.Address(), tt.attr, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("FormatAttribute(%s, %s) = %q, want %q", tt.node.Address(), tt.attr, got, tt.want)
		}
	}
}

func TestFormatDomain(t *testing.T) {
	if got := FormatDomain(domain.Domain{}, domain.Clip); got != "none" {
		t.Errorf("FormatDomain(zero) = %q, want none", got)
	}
	d, _ := domain.StringSet("sine", "square")
	if got := FormatDomain(d, domain.Free); got != `free string{"sine", "square"}` {
		t.Errorf("FormatDomain(set) = %q", got)
	}
}
