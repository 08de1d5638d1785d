package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id int64, sender int64, content string, at time.Duration) domain.Message {
	return domain.Message{ID: id, SenderID: sender, ReceiverID: 1, Content: content, CreatedAt: t0.Add(at)}
}

func ids(ms []domain.Message) []int64 {
	out := make([]int64, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestTimelineAdd(t *testing.T) {
	t.Run("DropsDuplicateServerID", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		assert.True(t, tl.add(msg(1, 2, "a", 0)))
		assert.False(t, tl.add(msg(1, 2, "a", time.Second)))
		assert.Equal(t, 1, tl.size())
	})

	t.Run("SyntheticMatchesServerEntry", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		push := msg(1700000000000, 2, "hi", 0)
		push.Synthetic = true
		assert.True(t, tl.add(push))
		assert.False(t, tl.add(msg(40, 2, "hi", 2*time.Second)), "same sender and content inside window")
		assert.Equal(t, []int64{40}, ids(tl.snapshot()), "server entry replaces the synthetic one")
		assert.False(t, tl.add(msg(40, 2, "hi", 2*time.Second)))
		assert.True(t, tl.add(msg(41, 2, "hi", 10*time.Second)), "outside window")
	})

	t.Run("ServerEntryAbsorbsOneSynthetic", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tl.add(msg(40, 2, "ok", 0))
		first := msg(1700000000000, 2, "ok", time.Second)
		first.Synthetic = true
		second := msg(1700000000001, 2, "ok", 2*time.Second)
		second.Synthetic = true

		assert.False(t, tl.add(first))
		assert.True(t, tl.add(second))
		assert.Equal(t, 2, tl.size())
	})

	t.Run("SyntheticPushesNeverMatchEachOther", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		a := msg(100, 2, "ok", 0)
		a.Synthetic = true
		b := msg(101, 2, "ok", 0)
		b.Synthetic = true
		assert.True(t, tl.add(a))
		assert.True(t, tl.add(b))
		assert.Equal(t, 2, tl.size())
	})

	t.Run("AppendsAtTail", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tl.add(msg(5, 2, "late", time.Minute))
		tl.add(msg(4, 2, "early", 0))
		assert.Equal(t, []int64{5, 4}, ids(tl.snapshot()))
	})
}

func TestTimelineReplace(t *testing.T) {
	t.Run("SortsPage", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tl.beginFetch()
		tl.replace([]domain.Message{msg(2, 2, "b", time.Second), msg(1, 2, "a", 0), msg(3, 2, "c", time.Second)})
		assert.Equal(t, []int64{1, 2, 3}, ids(tl.snapshot()))
	})

	t.Run("KeepsPushesReceivedDuringFetch", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tl.add(msg(9, 2, "old", -time.Hour))
		tl.beginFetch()
		tl.add(msg(3, 2, "m3", 3*time.Second))
		tl.add(msg(2, 2, "m2", 2*time.Second))

		tl.replace([]domain.Message{msg(1, 2, "m1", time.Second), msg(2, 2, "m2", 2*time.Second)})

		assert.Equal(t, []int64{1, 2, 3}, ids(tl.snapshot()))
	})

	t.Run("RepeatedSyntheticPushesSurviveShortPage", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tl.beginFetch()
		a := msg(1700000000000, 2, "ok", 0)
		a.Synthetic = true
		b := msg(1700000000001, 2, "ok", time.Second)
		b.Synthetic = true
		tl.add(a)
		tl.add(b)

		tl.replace([]domain.Message{msg(40, 2, "ok", 0)})

		got := tl.snapshot()
		require.Len(t, got, 2)
		assert.Equal(t, int64(40), got[0].ID)
		assert.True(t, got[1].Synthetic)
	})

	t.Run("StaleAbortKeepsNewerFetch", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		old := tl.beginFetch()
		tl.beginFetch()
		tl.add(msg(3, 2, "m3", time.Second))
		tl.abortFetch(old)

		tl.replace([]domain.Message{msg(1, 2, "m1", 0)})
		assert.Equal(t, []int64{1, 3}, ids(tl.snapshot()))
	})

	t.Run("AbortEndsFetch", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tok := tl.beginFetch()
		tl.abortFetch(tok)
		for i := int64(1); i <= 100; i++ {
			tl.add(msg(i, 2, "x", 0))
		}
		assert.False(t, tl.fetching)
		assert.Empty(t, tl.pending)
	})

	t.Run("AbortDropsPending", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tok := tl.beginFetch()
		tl.add(msg(3, 2, "m3", 0))
		tl.abortFetch(tok)
		tl.beginFetch()
		tl.replace([]domain.Message{msg(1, 2, "m1", 0)})
		assert.Equal(t, []int64{1}, ids(tl.snapshot()))
	})

	t.Run("EmptyPage", func(t *testing.T) {
		tl := newTimeline(directIdentity)
		tl.add(msg(1, 2, "a", 0))
		tl.beginFetch()
		tl.replace(nil)
		assert.Empty(t, tl.snapshot())
		_, ok := tl.last()
		assert.False(t, ok)
	})
}

func TestTimelineSnapshotIsCopy(t *testing.T) {
	tl := newTimeline(groupIdentity)
	tl.add(domain.GroupMessage{ID: 1, ChatRoomID: 5, Content: "x"})
	snap := tl.snapshot()
	snap[0].Content = "mutated"
	last, ok := tl.last()
	assert.True(t, ok)
	assert.Equal(t, "x", last.Content)
}
