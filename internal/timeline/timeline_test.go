package timeline

import (
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func ev(id string, at time.Time) event.Event {
	e := event.New("lose_job_fired", "ent", at, 1)
	e.ID = id
	return e
}

func TestAppend_KeepsAscendingStableOrder(t *testing.T) {
	tl := New("ent")
	require.NoError(t, tl.Append(ev("c", t0.Add(2*time.Hour))))
	require.NoError(t, tl.Append(ev("a", t0)))
	require.NoError(t, tl.Append(ev("b1", t0.Add(time.Hour))))
	require.NoError(t, tl.Append(ev("b2", t0.Add(time.Hour))))

	var ids []string
	for _, e := range tl.Events() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
	assert.Equal(t, 4, tl.Len())
}

func TestAppend_RejectsOtherEntity(t *testing.T) {
	tl := New("ent")
	e := ev("x", t0)
	e.Target = "other"
	require.ErrorIs(t, tl.Append(e), ErrWrongEntity)
	assert.Zero(t, tl.Len())
}

func TestEvents_ReturnsCopy(t *testing.T) {
	tl := New("ent")
	require.NoError(t, tl.Append(ev("a", t0)))

	got := tl.Events()
	got[0].ID = "mutated"
	assert.Equal(t, "a", tl.Events()[0].ID)
}

func TestResolve_ForwardAndBackwardAreDisjoint(t *testing.T) {
	anchor := t0
	before := ev("before", t0.AddDate(-5, 0, 0))
	at := ev("at-anchor", t0)
	after := ev("after", t0.AddDate(5, 0, 0))
	events := []event.Event{before, at, after}

	fwd := Resolve(anchor, t0.AddDate(2, 0, 0), events)
	assert.Equal(t, state.Forward, fwd.Direction)
	assert.Equal(t, []string{"at-anchor"}, fwd.IDs())

	fwdLate := Resolve(anchor, t0.AddDate(6, 0, 0), events)
	assert.Equal(t, []string{"at-anchor", "after"}, fwdLate.IDs())

	back := Resolve(anchor, t0.AddDate(-2, 0, 0), events)
	assert.Equal(t, state.Backward, back.Direction)
	assert.Empty(t, back.IDs())

	backEarly := Resolve(anchor, t0.AddDate(-6, 0, 0), events)
	assert.Equal(t, []string{"before"}, backEarly.IDs())
}

func TestResolve_Boundaries(t *testing.T) {
	q := t0.Add(-time.Hour)
	events := []event.Event{ev("at-query", q), ev("at-anchor", t0)}

	back := Resolve(t0, q, events)
	assert.Equal(t, []string{"at-query"}, back.IDs(), "query bound inclusive, anchor bound exclusive")

	fwd := Resolve(t0, t0, events)
	assert.Equal(t, state.Forward, fwd.Direction)
	assert.Equal(t, []string{"at-anchor"}, fwd.IDs(), "anchor bound inclusive")
}

func TestTimeline_ConcurrentAppendAndRead(t *testing.T) {
	tl := New("ent")
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tl.Append(ev("", t0.Add(time.Duration(w*50+i)*time.Minute)))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				events := tl.Events()
				for j := 1; j < len(events); j++ {
					if events[j].Timestamp.Before(events[j-1].Timestamp) {
						t.Errorf("out of order at %d", j)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, tl.Len())
}
