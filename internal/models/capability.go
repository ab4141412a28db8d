package models

import (
	"slices"
)

type Capability string

const (
	CapabilityAdmin        Capability = "admin"
	CapabilityBalanceWrite Capability = "balance:write"
	CapabilityAuditRead    Capability = "audit:read"
	CapabilityOrdersManage Capability = "orders:manage"
)

var knownCapabilities = []Capability{
	CapabilityAdmin,
	CapabilityBalanceWrite,
	CapabilityAuditRead,
	CapabilityOrdersManage,
}

// Set of capabilities granted to a customer account.
// The zero value is an empty set and is ready to use.
type CapabilitySet struct {
	items map[Capability]struct{}
}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s.Add(c)
	}
	return s
}

// Parse stored capability names; unknown names are dropped
func ParseCapabilitySet(names []string) CapabilitySet {
	var s CapabilitySet
	for _, n := range names {
		c := Capability(n)
		if slices.Contains(knownCapabilities, c) {
			s.Add(c)
		}
	}
	return s
}

func (s *CapabilitySet) Add(c Capability) {
	if s.items == nil {
		s.items = make(map[Capability]struct{})
	}
	s.items[c] = struct{}{}
}

// Has reports whether the set grants c. Admin grants everything.
func (s CapabilitySet) Has(c Capability) bool {
	if _, ok := s.items[CapabilityAdmin]; ok {
		return true
	}
	_, ok := s.items[c]
	return ok
}

// Strings returns capability names in a stable order
func (s CapabilitySet) Strings() []string {
	names := make([]string, 0, len(s.items))
	for _, c := range knownCapabilities {
		if _, ok := s.items[c]; ok {
			names = append(names, string(c))
		}
	}
	return names
}
