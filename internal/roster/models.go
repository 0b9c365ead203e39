// Package roster loads the configured list of team members.
package roster

import (
	"context"
	"fmt"
	"strings"
)

// TeamMember is one canonical roster entry.
type TeamMember struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"name" json:"display_name"`
	VCSHandle   string `yaml:"github,omitempty" json:"vcs_handle,omitempty"`
	Email       string `yaml:"email,omitempty" json:"email,omitempty"`
	DutyCount   int    `yaml:"dutyCount,omitempty" json:"duty_count,omitempty"`
	ReviewCount int    `yaml:"reviewCount,omitempty" json:"review_count,omitempty"`
}

// Source provides the current roster. Implementations return a fresh copy per call.
type Source interface {
	Members(ctx context.Context) ([]TeamMember, error)
}

// StaticSource serves a fixed roster.
type StaticSource []TeamMember

// Members returns a copy of the static roster.
func (s StaticSource) Members(_ context.Context) ([]TeamMember, error) {
	out := make([]TeamMember, len(s))
	copy(out, s)
	return out, nil
}

// Validate checks that every member has an id and that ids are unique.
func Validate(members []TeamMember) error {
	seen := make(map[string]struct{}, len(members))
	for i, m := range members {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("member %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate member id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
