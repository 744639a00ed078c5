package grouping

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"herald/announcer/internal/control"
	"herald/announcer/internal/platform"
)

func profilesFor(ids map[string]string) map[string]platform.Profile {
	out := make(map[string]platform.Profile, len(ids))
	for id, name := range ids {
		out[id] = platform.ByName(name)
	}
	return out
}

func TestPlanGroupsSonosPair(t *testing.T) {
	ids := []string{"sonos_a", "cast_a", "sonos_b", "echo_a"}
	groups := Plan(ids, profilesFor(map[string]string{
		"sonos_a": platform.Sonos,
		"sonos_b": platform.Sonos,
		"cast_a":  platform.Cast,
		"echo_a":  platform.Alexa,
	}))

	if len(groups) != 1 {
		t.Fatalf("groups = %v, want one sonos group", groups)
	}
	g := groups[0]
	if g.Coordinator != "sonos_a" {
		t.Errorf("coordinator = %s, want first in request order", g.Coordinator)
	}
	if !reflect.DeepEqual(g.Members, []string{"sonos_b"}) {
		t.Errorf("members = %v", g.Members)
	}
	if !reflect.DeepEqual(g.All(), []string{"sonos_a", "sonos_b"}) {
		t.Errorf("all = %v", g.All())
	}
}

func TestPlanSingleSpeakerNoGroup(t *testing.T) {
	groups := Plan([]string{"sonos_a", "echo_a"}, profilesFor(map[string]string{
		"sonos_a": platform.Sonos,
		"echo_a":  platform.Alexa,
	}))
	if len(groups) != 0 {
		t.Fatalf("groups = %v, want none", groups)
	}
}

func TestPlanNonGroupablePlatforms(t *testing.T) {
	groups := Plan([]string{"cast_a", "cast_b"}, profilesFor(map[string]string{
		"cast_a": platform.Cast,
		"cast_b": platform.Cast,
	}))
	if len(groups) != 0 {
		t.Fatal("cast speakers must not be grouped")
	}
}

type joinCtrl struct {
	control.SpeakerController
	joinErr  error
	joined   [][]string
	unjoined []string
}

func (j *joinCtrl) Join(ctx context.Context, c string, m []string) error {
	if j.joinErr != nil {
		return j.joinErr
	}
	j.joined = append(j.joined, append([]string{c}, m...))
	return nil
}

func (j *joinCtrl) Unjoin(ctx context.Context, ids []string) error {
	j.unjoined = append(j.unjoined, ids...)
	return nil
}

func TestFormAndDissolve(t *testing.T) {
	ctrl := &joinCtrl{}
	m := NewManager(ctrl)
	g := Group{Platform: platform.Sonos, Coordinator: "a", Members: []string{"b"}}

	if err := m.Form(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	m.Dissolve(context.Background(), g)
	if len(ctrl.unjoined) != 2 {
		t.Fatalf("unjoined = %v", ctrl.unjoined)
	}
}

func TestFormFailureIsReturned(t *testing.T) {
	m := NewManager(&joinCtrl{joinErr: errors.New("busy")})
	g := Group{Platform: platform.Sonos, Coordinator: "a", Members: []string{"b"}}
	if err := m.Form(context.Background(), g); err == nil {
		t.Fatal("expected join error")
	}
}
