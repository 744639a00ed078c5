// Package grouping forms temporary speaker groups so platforms with native
// synchronized playback play one announcement stream instead of N. Grouping
// is an optimization: every failure here degrades to ungrouped playback.
package grouping

import (
	"context"
	"fmt"
	"log"

	"herald/announcer/internal/control"
	"herald/announcer/internal/platform"
)

// Group is one coordinator plus the members that join it for the
// announcement.
type Group struct {
	Platform    string
	Coordinator string
	Members     []string
}

// All returns coordinator plus members.
func (g Group) All() []string {
	return append([]string{g.Coordinator}, g.Members...)
}

// Plan partitions the speakers into groups per groupable platform. A
// platform needs at least two speakers to be worth a group; the first
// speaker in request order becomes coordinator.
func Plan(speakerIDs []string, profiles map[string]platform.Profile) []Group {
	byPlatform := map[string][]string{}
	order := []string{}
	for _, id := range speakerIDs {
		prof := profiles[id]
		if !prof.Groupable {
			continue
		}
		if _, seen := byPlatform[prof.Name]; !seen {
			order = append(order, prof.Name)
		}
		byPlatform[prof.Name] = append(byPlatform[prof.Name], id)
	}
	var groups []Group
	for _, name := range order {
		ids := byPlatform[name]
		if len(ids) < 2 {
			continue
		}
		groups = append(groups, Group{
			Platform:    name,
			Coordinator: ids[0],
			Members:     ids[1:],
		})
	}
	return groups
}

// Manager issues the join/unjoin calls for planned groups.
type Manager struct {
	ctrl control.SpeakerController
}

func NewManager(ctrl control.SpeakerController) *Manager {
	return &Manager{ctrl: ctrl}
}

// Form joins the members to the coordinator. On failure the caller keeps the
// speakers ungrouped and addresses them individually.
func (m *Manager) Form(ctx context.Context, g Group) error {
	if err := m.ctrl.Join(ctx, g.Coordinator, g.Members); err != nil {
		return fmt.Errorf("join %s group at %s: %w", g.Platform, g.Coordinator, err)
	}
	log.Printf("[grouping] formed %s group: coordinator=%s members=%v", g.Platform, g.Coordinator, g.Members)
	return nil
}

// Dissolve unjoins every speaker in the group. Failures are logged, not
// returned; a lingering group resolves itself on the next hub interaction.
func (m *Manager) Dissolve(ctx context.Context, g Group) {
	if err := m.ctrl.Unjoin(ctx, g.All()); err != nil {
		log.Printf("[grouping] unjoin %s group failed: %v", g.Platform, err)
	}
}
