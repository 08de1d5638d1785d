package service

import (
	"slices"
	"sort"
	"time"

	"chatclient/internal/domain"
)

// dedupWindow bounds the sender+content heuristic used when one side of a
// comparison has no server id.
const dedupWindow = 5 * time.Second

type identity struct {
	id        int64
	synthetic bool
	sender    int64
	content   string
	at        time.Time
}

func directIdentity(m domain.Message) identity {
	return identity{id: m.ID, synthetic: m.Synthetic, sender: m.SenderID, content: m.Content, at: m.CreatedAt}
}

func groupIdentity(m domain.GroupMessage) identity {
	return identity{id: m.ID, synthetic: m.Synthetic, sender: m.SenderID, content: m.Content, at: m.CreatedAt}
}

// sameMessage reports whether two entries describe one logical message.
// Server ids compare exactly. A synthetic entry matches a server entry with
// the same sender and content within dedupWindow. Two synthetic entries are
// distinct pushes and never match.
func (a identity) sameMessage(b identity) bool {
	switch {
	case !a.synthetic && !b.synthetic:
		return a.id == b.id
	case a.synthetic && b.synthetic:
		return false
	}
	d := a.at.Sub(b.at)
	if d < 0 {
		d = -d
	}
	return a.sender == b.sender && a.content == b.content && d <= dedupWindow
}

// timeline is an append-only message log with duplicate suppression. While a
// history fetch is in flight, appended entries are also kept in pending so
// the fetch result can be merged as a set union instead of overwriting them.
//
// A heuristic match pairs a synthetic entry with one server entry; a paired
// entry never absorbs a second counterpart.
type timeline[T any] struct {
	ident     func(T) identity
	items     []T
	paired    []bool
	ids       map[int64]struct{}
	synthetic int

	fetching bool
	fetchSeq uint64
	pending  []T
}

func newTimeline[T any](ident func(T) identity) *timeline[T] {
	return &timeline[T]{ident: ident, ids: make(map[int64]struct{})}
}

// add appends m at the tail unless an equivalent entry exists. A server entry
// matching an unpaired synthetic one replaces it in place.
func (tl *timeline[T]) add(m T) bool {
	id := tl.ident(m)
	if !id.synthetic {
		if _, ok := tl.ids[id.id]; ok {
			return false
		}
	}
	if i := tl.counterpart(id); i >= 0 {
		tl.paired[i] = true
		if !id.synthetic {
			tl.items[i] = m
			tl.ids[id.id] = struct{}{}
			tl.synthetic--
			if tl.fetching {
				tl.pending = append(tl.pending, m)
			}
		}
		return false
	}

	tl.items = append(tl.items, m)
	tl.paired = append(tl.paired, false)
	if id.synthetic {
		tl.synthetic++
	} else {
		tl.ids[id.id] = struct{}{}
	}
	if tl.fetching {
		tl.pending = append(tl.pending, m)
	}
	return true
}

// counterpart returns the index of the newest unpaired entry on the other
// side of the synthetic/server divide that matches id, or -1.
func (tl *timeline[T]) counterpart(id identity) int {
	if !id.synthetic && tl.synthetic == 0 {
		return -1
	}
	for i := len(tl.items) - 1; i >= 0; i-- {
		if tl.paired[i] {
			continue
		}
		other := tl.ident(tl.items[i])
		if other.synthetic != id.synthetic && other.sameMessage(id) {
			return i
		}
	}
	return -1
}

// beginFetch starts collecting pending entries and returns a token that
// identifies this fetch.
func (tl *timeline[T]) beginFetch() uint64 {
	if !tl.fetching {
		tl.pending = nil
	}
	tl.fetching = true
	tl.fetchSeq++
	return tl.fetchSeq
}

// abortFetch ends the fetch identified by tok. It is a no-op when a newer
// fetch has started since.
func (tl *timeline[T]) abortFetch(tok uint64) {
	if !tl.fetching || tl.fetchSeq != tok {
		return
	}
	tl.fetching = false
	tl.pending = nil
}

// replace installs a fetched page, stable-sorted by timestamp, followed by
// every entry appended since the fetch began that the page does not contain.
func (tl *timeline[T]) replace(fetched []T) {
	page := slices.Clone(fetched)
	sort.SliceStable(page, func(i, j int) bool {
		return tl.ident(page[i]).at.Before(tl.ident(page[j]).at)
	})
	pending := tl.pending

	tl.items = make([]T, 0, len(page)+len(pending))
	tl.paired = make([]bool, 0, len(page)+len(pending))
	tl.ids = make(map[int64]struct{}, len(page)+len(pending))
	tl.synthetic = 0
	tl.fetching = false
	tl.pending = nil

	for _, m := range page {
		tl.add(m)
	}
	for _, m := range pending {
		tl.add(m)
	}
}

func (tl *timeline[T]) snapshot() []T {
	return slices.Clone(tl.items)
}

func (tl *timeline[T]) last() (T, bool) {
	var zero T
	if len(tl.items) == 0 {
		return zero, false
	}
	return tl.items[len(tl.items)-1], true
}

func (tl *timeline[T]) size() int {
	return len(tl.items)
}
