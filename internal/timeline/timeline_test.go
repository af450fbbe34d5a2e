package timeline

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(path string, begin, dur time.Duration) *Segment {
	return &Segment{Path: path, Begin: begin, End: begin + dur}
}

func paths(t *Timeline) []string {
	var out []string
	for _, s := range t.All() {
		out = append(out, s.Path)
	}
	return out
}

func TestTimeline_Insert_orders_by_begin(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	tl.Insert(seg("c", 20*time.Second, time.Second))
	tl.Insert(seg("a", 0, time.Second))
	tl.Insert(seg("b", 10*time.Second, time.Second))
	tl.Insert(seg("d", 30*time.Second, time.Second))

	assert.Equal(t, []string{"a", "b", "c", "d"}, paths(tl))
	front, ok := tl.Front()
	require.True(t, ok)
	assert.Equal(t, "a", front.Path)
}

func TestTimeline_Insert_ties_keep_insertion_order(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	tl.Insert(seg("late", 5*time.Second, time.Second))
	tl.Insert(seg("first", 0, time.Second))
	tl.Insert(seg("second", 0, 2*time.Second))
	tl.Insert(seg("third", 0, 3*time.Second))

	assert.Equal(t, []string{"first", "second", "third", "late"}, paths(tl))
}

func TestTimeline_Insert_random_sequences(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 20; round++ {
		tl := New("b1", hdDescriptor("main"))
		var inserted []*Segment
		for i := 0; i < 100; i++ {
			s := seg(fmt.Sprintf("seg-%03d", i), time.Duration(r.IntN(10))*time.Second, time.Second)
			inserted = append(inserted, s)
			tl.Insert(s)
		}

		want := slices.Clone(inserted)
		slices.SortStableFunc(want, func(a, b *Segment) int {
			return cmp.Compare(a.Begin, b.Begin)
		})
		var got []*Segment
		for _, s := range tl.All() {
			got = append(got, s)
		}
		require.Len(t, got, len(want))
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("round %d: position %d holds %s, want %s", round, i, got[i].Path, want[i].Path)
			}
		}
	}
}

func TestTimeline_All_stops_early(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	for i := 0; i < 5; i++ {
		tl.Insert(seg("s", time.Duration(i)*time.Second, time.Second))
	}
	n := 0
	for range tl.All() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestTimeline_Span(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	_, _, ok := tl.Span()
	assert.False(t, ok)

	tl.Insert(seg("a", 10*time.Second, 30*time.Second))
	tl.Insert(seg("b", 20*time.Second, 5*time.Second))
	tl.Insert(seg("c", 15*time.Second, 5*time.Second))

	begin, end, ok := tl.Span()
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, begin)
	assert.Equal(t, 40*time.Second, end)
}

func TestTimeline_Evict(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	tl.Insert(seg("a", 0, time.Second))
	tl.Insert(seg("b", time.Second, time.Second))
	tl.current = tl.segments[0]
	tl.state = StateRunning

	backing := tl.segments[:2]

	assert.False(t, tl.Evict("missing"))
	assert.True(t, tl.Evict("a"))
	assert.Equal(t, []string{"b"}, paths(tl))
	assert.Nil(t, backing[1], "evicted slot must not pin a released segment")
	_, ok := tl.Current()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, tl.State())
}

func TestTimeline_Close(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	tl.Insert(seg("a", 0, time.Second))
	tl.Close()
	tl.Close()

	assert.Equal(t, StateClosed, tl.State())
	assert.Equal(t, 0, tl.Len())
	assert.Equal(t, "b1", tl.BuildID())
	assert.Equal(t, "main", tl.Descriptor().Name)
}

func TestTimeline_Snapshot(t *testing.T) {
	tl := New("b1", hdDescriptor("main"))
	tl.Insert(seg("b", 4*time.Second, 2*time.Second))
	tl.Insert(seg("a", 0, 4*time.Second))
	tl.current = tl.segments[0]
	tl.state = StateRunning

	snap := tl.Snapshot()
	assert.Equal(t, "b1", snap.BuildID)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, []SegmentInfo{
		{Path: "a", Begin: 0, End: 4 * time.Second, Current: true},
		{Path: "b", Begin: 4 * time.Second, End: 6 * time.Second},
	}, snap.Segments)

	snap.Segments[0].Path = "changed"
	assert.Equal(t, "a", tl.segments[0].Path)
}
