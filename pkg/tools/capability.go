package tools

import (
	"encoding/json"
	"slices"
)

// Capability is a tool the model may call.
type Capability struct {
	Name        string
	Description string

	// Parameters is the JSON Schema of the tool's arguments. Object
	// schemas always declare properties.
	Parameters json.RawMessage
}

// CapabilitySet is the immutable set of tools discovered for a run.
// Names keep their discovery order.
type CapabilitySet struct {
	byName map[string]Capability
	order  []string
}

// NewCapabilitySet builds a set from caps. When a name appears more than
// once the first capability wins.
func NewCapabilitySet(caps []Capability) *CapabilitySet {
	s := &CapabilitySet{byName: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if _, dup := s.byName[c.Name]; dup {
			continue
		}
		s.byName[c.Name] = c
		s.order = append(s.order, c.Name)
	}
	return s
}

// Lookup returns the capability with the given name.
func (s *CapabilitySet) Lookup(name string) (Capability, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Names returns the tool names in discovery order.
func (s *CapabilitySet) Names() []string {
	return slices.Clone(s.order)
}

// All returns the capabilities in discovery order.
func (s *CapabilitySet) All() []Capability {
	out := make([]Capability, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Len returns the number of capabilities.
func (s *CapabilitySet) Len() int {
	return len(s.order)
}
