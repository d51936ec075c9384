// Package roster keeps the latest player list snapshot and works out who
// joined and who left between snapshots.
package roster

import (
	"sync/atomic"

	"github.com/parklink-project/parklink/internal/protocol"
)

// Change describes one roster replacement.
type Change struct {
	// Players is the new snapshot.
	Players []protocol.Player
	// Left holds the previous records of players missing from the new snapshot.
	Left []protocol.Player
	// Joined holds the new records of players missing from the previous snapshot.
	Joined []protocol.Player
	// First is set when there was no previous snapshot; Left and Joined are empty.
	First bool
}

// Roster holds the current snapshot. Replace is meant to be called from a
// single goroutine; Snapshot may be called from any.
type Roster struct {
	current atomic.Pointer[[]protocol.Player]
}

// New returns an empty roster that has not seen a snapshot yet.
func New() *Roster {
	return &Roster{}
}

// Replace swaps in next and reports the difference to the previous snapshot.
func (r *Roster) Replace(next []protocol.Player) Change {
	snapshot := make([]protocol.Player, len(next))
	copy(snapshot, next)

	prev := r.current.Swap(&snapshot)
	if prev == nil {
		return Change{Players: snapshot, First: true}
	}

	left, joined := Diff(*prev, snapshot)
	return Change{Players: snapshot, Left: left, Joined: joined}
}

// Snapshot returns a copy of the current players and whether any snapshot
// has been received.
func (r *Roster) Snapshot() ([]protocol.Player, bool) {
	p := r.current.Load()
	if p == nil {
		return nil, false
	}
	out := make([]protocol.Player, len(*p))
	copy(out, *p)
	return out, true
}

// Len returns the number of players in the current snapshot.
func (r *Roster) Len() int {
	if p := r.current.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Diff compares two snapshots by player ID. Order follows the input slices.
func Diff(prev, next []protocol.Player) (left, joined []protocol.Player) {
	prevIDs := make(map[uint8]struct{}, len(prev))
	for _, p := range prev {
		prevIDs[p.ID] = struct{}{}
	}
	nextIDs := make(map[uint8]struct{}, len(next))
	for _, p := range next {
		nextIDs[p.ID] = struct{}{}
	}

	for _, p := range prev {
		if _, ok := nextIDs[p.ID]; !ok {
			left = append(left, p)
		}
	}
	for _, p := range next {
		if _, ok := prevIDs[p.ID]; !ok {
			joined = append(joined, p)
		}
	}
	return left, joined
}
