// Package credits keeps client class-credit balances in step with class
// events. Delta computation is pure; Ledger applies the netted deltas to a
// ProfileStore.
package credits

import (
	"sort"

	"github.com/example/studio-scheduler/internal/persistence"
)

// Change is the netted credit delta for one client.
type Change struct {
	ClientID string `json:"client_id"`
	Delta    int    `json:"delta"`
}

type tally map[string]int

func (t tally) add(clients []string, delta int) {
	for _, id := range unique(clients) {
		t[id] += delta
	}
}

func (t tally) changes() []Change {
	out := make([]Change, 0, len(t))
	for id, delta := range t {
		if delta == 0 {
			continue
		}
		out = append(out, Change{ClientID: id, Delta: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// CreateDeltas deducts one credit from every client of a new class event.
func CreateDeltas(ev persistence.Event) []Change {
	t := tally{}
	if ev.IsClass() {
		t.add(ev.Client, -1)
	}
	return t.changes()
}

// DeleteDeltas refunds one credit to every client of a removed class event.
func DeleteDeltas(ev persistence.Event) []Change {
	t := tally{}
	if ev.IsClass() {
		t.add(ev.Client, 1)
	}
	return t.changes()
}

// UpdateDeltas compares the event before and after an edit. Clients present
// in both class versions are untouched.
func UpdateDeltas(before, after persistence.Event) []Change {
	t := tally{}
	switch {
	case before.IsClass() && !after.IsClass():
		t.add(before.Client, 1)
	case !before.IsClass() && after.IsClass():
		t.add(after.Client, -1)
	case before.IsClass() && after.IsClass():
		oldSet := set(before.Client)
		newSet := set(after.Client)
		for id := range oldSet {
			if _, kept := newSet[id]; !kept {
				t[id]++
			}
		}
		for id := range newSet {
			if _, kept := oldSet[id]; !kept {
				t[id]--
			}
		}
	}
	return t.changes()
}

// BatchCreateDeltas nets the create deltas of every event so each client
// receives a single combined change.
func BatchCreateDeltas(events []persistence.Event) []Change {
	t := tally{}
	for _, ev := range events {
		if ev.IsClass() {
			t.add(ev.Client, -1)
		}
	}
	return t.changes()
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func set(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range unique(ids) {
		out[id] = struct{}{}
	}
	return out
}
