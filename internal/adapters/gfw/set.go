package gfw

import (
	"github.com/samirrijal/forestlens/internal/core/ports"
)

var _ ports.UpstreamSet = (*Set)(nil)

// Set holds one client per API family.
type Set struct {
	Analytics *Client
	Data      *Client
}

// NewSet builds both family clients with shared options.
func NewSet(analyticsBase, dataBase, apiKey string, opts ...Option) *Set {
	return &Set{
		Analytics: New(ports.FamilyAnalytics, analyticsBase, apiKey, opts...),
		Data:      New(ports.FamilyData, dataBase, apiKey, opts...),
	}
}

// For returns the client for family. Unknown families get the analytics client.
func (s *Set) For(family ports.Family) ports.Upstream {
	if family == ports.FamilyData {
		return s.Data
	}
	return s.Analytics
}

// Clients lists both clients, analytics first.
func (s *Set) Clients() []*Client {
	return []*Client{s.Analytics, s.Data}
}
