package inbox

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(i int) Message {
	return Message{ID: fmt.Sprintf("m%d", i), SenderID: "u1", Text: fmt.Sprintf("text %d", i)}
}

func TestAppendAndDrain_PreservesOrder(t *testing.T) {
	b := New(MaxCapacity)
	for i := 1; i <= 3; i++ {
		b.Append(msg(i))
	}

	got := b.DrainAll()
	require.Len(t, got, 3)
	for i, m := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i+1), m.ID)
		assert.False(t, m.ReceivedAt.IsZero(), "ReceivedAt should be stamped")
	}
}

func TestAppend_EvictsOldestPastCapacity(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{name: "exactly full", n: 50},
		{name: "one over", n: 51},
		{name: "wrapped twice", n: 137},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(MaxCapacity)
			for i := 1; i <= tt.n; i++ {
				b.Append(msg(i))
				assert.LessOrEqual(t, b.Len(), MaxCapacity)
			}

			got := b.DrainAll()
			require.Len(t, got, MaxCapacity)
			first := tt.n - MaxCapacity + 1
			for i, m := range got {
				assert.Equal(t, fmt.Sprintf("m%d", first+i), m.ID)
			}
			assert.Equal(t, uint64(tt.n-MaxCapacity), b.Evicted())
		})
	}
}

func TestDrainAll_EmptiesBuffer(t *testing.T) {
	b := New(MaxCapacity)
	b.Append(msg(1))
	b.Append(msg(2))

	require.Len(t, b.DrainAll(), 2)
	second := b.DrainAll()
	assert.NotNil(t, second)
	assert.Empty(t, second)
	assert.Equal(t, 0, b.Len())
}

func TestDrainAll_EmptyBufferIsIdempotent(t *testing.T) {
	b := New(MaxCapacity)
	for range 3 {
		got := b.DrainAll()
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Equal(t, 0, b.Len())
}

func TestDrainAll_SnapshotIndependentOfLaterAppends(t *testing.T) {
	b := New(MaxCapacity)
	b.Append(msg(1))
	snap := b.DrainAll()

	b.Append(msg(2))
	require.Len(t, snap, 1)
	assert.Equal(t, "m1", snap[0].ID)

	after := b.DrainAll()
	require.Len(t, after, 1)
	assert.Equal(t, "m2", after[0].ID)
}

func TestAppend_DuplicateIDsCoexist(t *testing.T) {
	b := New(MaxCapacity)
	b.Append(Message{ID: "dup", SenderID: "u1", Text: "a"})
	b.Append(Message{ID: "dup", SenderID: "u1", Text: "a"})

	assert.Len(t, b.DrainAll(), 2)
}

func TestAppend_ReceivedAtNonDecreasing(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	i := 0
	b := New(MaxCapacity, WithClock(func() time.Time {
		ts := stamps[i]
		i++
		return ts
	}))

	for n := range stamps {
		b.Append(msg(n))
	}

	got := b.DrainAll()
	require.Len(t, got, len(stamps))
	for n := 1; n < len(got); n++ {
		assert.False(t, got[n].ReceivedAt.Before(got[n-1].ReceivedAt), "stamp %d went backwards", n)
	}
	assert.Equal(t, base.Add(time.Second), got[2].ReceivedAt)
}

func TestNew_NonPositiveCapacityUsesDefault(t *testing.T) {
	assert.Equal(t, MaxCapacity, New(0).Cap())
	assert.Equal(t, MaxCapacity, New(-4).Cap())
	assert.Equal(t, 3, New(3).Cap())
}

// Every append racing a drain must be seen exactly once: either in some drain
// result or in the final drain.
func TestConcurrentAppendAndDrain_NoLoss(t *testing.T) {
	const writers = 8
	const perWriter = 500

	// Large enough that eviction never hides a loss.
	b := New(writers * perWriter)

	var (
		wg      sync.WaitGroup
		seenMu  sync.Mutex
		seen    = make(map[string]int)
		stop    = make(chan struct{})
		drained sync.WaitGroup
	)

	record := func(ms []Message) {
		seenMu.Lock()
		for _, m := range ms {
			seen[m.ID]++
		}
		seenMu.Unlock()
	}

	drained.Add(1)
	go func() {
		defer drained.Done()
		for {
			select {
			case <-stop:
				return
			default:
				record(b.DrainAll())
			}
		}
	}()

	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWriter {
				b.Append(Message{ID: fmt.Sprintf("w%d-%d", w, i), SenderID: "u", Text: "x"})
			}
		}(w)
	}

	wg.Wait()
	close(stop)
	drained.Wait()
	record(b.DrainAll())

	require.Len(t, seen, writers*perWriter)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s seen %d times", id, n)
	}
}
