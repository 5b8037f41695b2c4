package model

import (
	"github.com/ossia-go/paramtree/pkg/value"
)

// InstanceBounds limits how many instances of a node may exist.
type InstanceBounds struct {
	Min int32
	Max int32
}

// metadata holds the descriptive attributes of a node. Nil pointers are
// unset attributes.
type metadata struct {
	description    *string
	extendedType   *string
	tags           []string
	hidden         bool
	refreshRate    *int32
	priority       *float32
	stepSize       *float32
	instanceBounds *InstanceBounds
	defaultValue   *value.Value
}

func (n Node) readMeta(fn func(m *metadata)) {
	if n.t == nil {
		return
	}
	n.t.mu.RLock()
	defer n.t.mu.RUnlock()
	if s, ok := n.t.lookup(n); ok {
		fn(&s.meta)
	}
}

func (n Node) writeMeta(fn func(m *metadata)) {
	if n.t == nil {
		return
	}
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	if s, ok := n.t.lookup(n); ok {
		fn(&s.meta)
	}
}

// Description returns the human readable description.
func (n Node) Description() (desc string, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.description != nil {
			desc, ok = *m.description, true
		}
	})
	return desc, ok
}

// SetDescription sets the description.
func (n Node) SetDescription(desc string) {
	n.writeMeta(func(m *metadata) { m.description = &desc })
}

// UnsetDescription clears the description.
func (n Node) UnsetDescription() {
	n.writeMeta(func(m *metadata) { m.description = nil })
}

// ExtendedType returns the free-form extended type, e.g. "color/rgb".
func (n Node) ExtendedType() (typ string, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.extendedType != nil {
			typ, ok = *m.extendedType, true
		}
	})
	return typ, ok
}

// SetExtendedType sets the extended type.
func (n Node) SetExtendedType(typ string) {
	n.writeMeta(func(m *metadata) { m.extendedType = &typ })
}

// UnsetExtendedType clears the extended type.
func (n Node) UnsetExtendedType() {
	n.writeMeta(func(m *metadata) { m.extendedType = nil })
}

// Tags returns the tags in insertion order.
func (n Node) Tags() []string {
	var out []string
	n.readMeta(func(m *metadata) {
		if len(m.tags) > 0 {
			out = append([]string(nil), m.tags...)
		}
	})
	return out
}

// SetTags replaces the tags. Duplicates keep their first position.
func (n Node) SetTags(tags []string) {
	dedup := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		dedup = append(dedup, tag)
	}
	n.writeMeta(func(m *metadata) { m.tags = dedup })
}

// AddTag appends tag unless already present.
func (n Node) AddTag(tag string) {
	if tag == "" {
		return
	}
	n.writeMeta(func(m *metadata) {
		for _, t := range m.tags {
			if t == tag {
				return
			}
		}
		m.tags = append(m.tags, tag)
	})
}

// UnsetTags clears the tags.
func (n Node) UnsetTags() {
	n.writeMeta(func(m *metadata) { m.tags = nil })
}

// Hidden reports whether the node is hidden from namespace listings.
func (n Node) Hidden() (hidden bool) {
	n.readMeta(func(m *metadata) { hidden = m.hidden })
	return hidden
}

// SetHidden sets the hidden flag.
func (n Node) SetHidden(hidden bool) {
	n.writeMeta(func(m *metadata) { m.hidden = hidden })
}

// RefreshRate returns the suggested update interval in milliseconds.
func (n Node) RefreshRate() (ms int32, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.refreshRate != nil {
			ms, ok = *m.refreshRate, true
		}
	})
	return ms, ok
}

// SetRefreshRate sets the refresh rate in milliseconds.
func (n Node) SetRefreshRate(ms int32) {
	n.writeMeta(func(m *metadata) { m.refreshRate = &ms })
}

// UnsetRefreshRate clears the refresh rate.
func (n Node) UnsetRefreshRate() {
	n.writeMeta(func(m *metadata) { m.refreshRate = nil })
}

// Priority returns the node priority.
func (n Node) Priority() (prio float32, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.priority != nil {
			prio, ok = *m.priority, true
		}
	})
	return prio, ok
}

// SetPriority sets the priority.
func (n Node) SetPriority(prio float32) {
	n.writeMeta(func(m *metadata) { m.priority = &prio })
}

// UnsetPriority clears the priority.
func (n Node) UnsetPriority() {
	n.writeMeta(func(m *metadata) { m.priority = nil })
}

// StepSize returns the suggested increment for UI controls.
func (n Node) StepSize() (step float32, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.stepSize != nil {
			step, ok = *m.stepSize, true
		}
	})
	return step, ok
}

// SetStepSize sets the step size.
func (n Node) SetStepSize(step float32) {
	n.writeMeta(func(m *metadata) { m.stepSize = &step })
}

// UnsetStepSize clears the step size.
func (n Node) UnsetStepSize() {
	n.writeMeta(func(m *metadata) { m.stepSize = nil })
}

// InstanceBounds returns the instance bounds.
func (n Node) InstanceBounds() (b InstanceBounds, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.instanceBounds != nil {
			b, ok = *m.instanceBounds, true
		}
	})
	return b, ok
}

// SetInstanceBounds sets the instance bounds.
func (n Node) SetInstanceBounds(b InstanceBounds) {
	n.writeMeta(func(m *metadata) { m.instanceBounds = &b })
}

// UnsetInstanceBounds clears the instance bounds.
func (n Node) UnsetInstanceBounds() {
	n.writeMeta(func(m *metadata) { m.instanceBounds = nil })
}

// DefaultValue returns the default value.
func (n Node) DefaultValue() (v value.Value, ok bool) {
	n.readMeta(func(m *metadata) {
		if m.defaultValue != nil {
			v, ok = *m.defaultValue, true
		}
	})
	return v, ok
}

// SetDefaultValue sets the default value.
func (n Node) SetDefaultValue(v value.Value) {
	n.writeMeta(func(m *metadata) { m.defaultValue = &v })
}

// UnsetDefaultValue clears the default value.
func (n Node) UnsetDefaultValue() {
	n.writeMeta(func(m *metadata) { m.defaultValue = nil })
}
