package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T, persist bool) (*Service, *store.Store) {
	t.Helper()
	var st *store.Store
	if persist {
		var err error
		st, err = store.NewStore(filepath.Join(t.TempDir(), "svc.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}
	reg := engine.NewRegistry(engine.New(catalog.Default(), engine.Options{}), nil)
	return New(reg, catalog.Default(), st, nil), st
}

func TestCreateEntity(t *testing.T) {
	svc, st := newService(t, true)
	ctx := context.Background()

	a := state.Anchor{EntityID: "ent", Timestamp: t0}
	a.State[state.Valence] = 3 // clamped
	got, err := svc.CreateEntity(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.State[state.Valence])

	stored, err := st.GetAnchor("ent")
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.State[state.Valence])

	_, err = svc.CreateEntity(ctx, a)
	assert.ErrorIs(t, err, engine.ErrAnchorExists)

	_, err = svc.CreateEntity(ctx, state.Anchor{EntityID: "no-time"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, []string{"ent"}, svc.Entities(ctx))
}

func TestAppendEvent(t *testing.T) {
	svc, st := newService(t, true)
	ctx := context.Background()
	_, err := svc.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0})
	require.NoError(t, err)

	ev, err := svc.AppendEvent(ctx, "ent", EventInput{
		Type:      "lose_job_fired",
		Severity:  1.7,
		Timestamp: t0.AddDate(0, 1, 0),
		BaseShifts: []develop.Request{
			{Trait: state.Conscientiousness, Raw: -0.1, Age: 30},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.Severity)
	assert.Equal(t, "ent", ev.Target)
	assert.True(t, ev.BaseShifts[0].At.Equal(t0.AddDate(0, 1, 0)))

	events, err := st.Events("ent")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)

	inMemory, err := svc.Events(ctx, "ent")
	require.NoError(t, err)
	assert.Len(t, inMemory, 1)
}

func TestAppendEvent_Rejects(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	_, err := svc.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0})
	require.NoError(t, err)

	tests := []struct {
		name   string
		entity string
		in     EventInput
		target error
	}{
		{"missing type and spec", "ent", EventInput{Timestamp: t0}, ErrInvalidInput},
		{"missing timestamp", "ent", EventInput{Type: "lose_job_fired"}, ErrInvalidInput},
		{"unknown type", "ent", EventInput{Type: "win_lottery", Timestamp: t0}, catalog.ErrUnknownEventType},
		{"unknown entity", "ghost", EventInput{Type: "lose_job_fired", Timestamp: t0}, engine.ErrNoAnchor},
		{"shift without age or birth date", "ent", EventInput{Type: "lose_job_fired", Timestamp: t0,
			BaseShifts: []develop.Request{{Trait: state.Openness, Raw: 0.1}}}, ErrInvalidInput},
		{"shift with negative age", "ent", EventInput{Type: "lose_job_fired", Timestamp: t0,
			BaseShifts: []develop.Request{{Trait: state.Openness, Raw: 0.1, Age: -3}}}, ErrInvalidInput},
		{"shift with unknown trait", "ent", EventInput{Type: "lose_job_fired", Timestamp: t0,
			BaseShifts: []develop.Request{{Trait: state.Trait(9), Raw: 0.1, Age: 30}}}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AppendEvent(ctx, tt.entity, tt.in)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	events, err := svc.Events(ctx, "ent")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendEvent_AgeFromBirthDate(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	_, err := svc.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0, BirthDate: t0.AddDate(-40, 0, 0)})
	require.NoError(t, err)

	_, err = svc.AppendEvent(ctx, "ent", EventInput{
		Type:       "lose_job_fired",
		Severity:   1,
		Timestamp:  t0.AddDate(1, 0, 0),
		BaseShifts: []develop.Request{{Trait: state.Openness, Raw: 0.1}},
	})
	require.NoError(t, err)

	res, err := svc.StateAt(ctx, "ent", t0.AddDate(2, 0, 0), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Ledger, 1)
	// Age 41 gives plasticity 0.89, not the under-18 value.
	assert.InDelta(t, 0.1*0.89/0.85, res.Snapshot.Ledger[0].Realized, 1e-3)
}

func TestAppendEvent_CustomKeepsID(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	_, err := svc.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0})
	require.NoError(t, err)

	var spec event.Spec
	spec.Impact[state.Valence] = -0.4
	ev, err := svc.AppendEvent(ctx, "ent", EventInput{ID: "evt_mine", Custom: &spec, Severity: 1, Timestamp: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "evt_mine", ev.ID)
	assert.Equal(t, event.CustomType, ev.Type)
}

func TestStateAt_SaveAndProvenance(t *testing.T) {
	svc, st := newService(t, true)
	ctx := context.Background()
	a := state.Anchor{EntityID: "ent", Timestamp: t0}
	a.State[state.Loneliness] = 0.9
	a.State[state.PerceivedReciprocalCaring] = -0.5
	_, err := svc.CreateEntity(ctx, a)
	require.NoError(t, err)

	res, err := svc.StateAt(ctx, "ent", t0.AddDate(0, 0, 1), QueryOptions{Save: true, Source: "test"})
	require.NoError(t, err)
	assert.Equal(t, state.Forward, res.Snapshot.Direction)
	assert.True(t, res.Eval.Passed, res.Eval.Reason)
	assert.True(t, res.Risk.TBElevated)
	assert.NotEmpty(t, res.VersionID)
	assert.Equal(t, res.Snapshot.Digest(), res.Digest)

	latest, err := st.LatestSnapshot("ent")
	require.NoError(t, err)
	assert.Equal(t, res.VersionID, latest.VersionID)

	_, err = svc.StateAt(ctx, "ghost", t0, QueryOptions{Source: "test"})
	assert.ErrorIs(t, err, engine.ErrNoAnchor)

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM query_log WHERE source = 'test'`).Scan(&n))
	assert.Equal(t, 2, n)
	var errored int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM query_log WHERE error IS NOT NULL`).Scan(&errored))
	assert.Equal(t, 1, errored)
}

func TestStateAt_NoStore(t *testing.T) {
	svc, _ := newService(t, false)
	ctx := context.Background()
	_, err := svc.CreateEntity(ctx, state.Anchor{EntityID: "ent", Timestamp: t0})
	require.NoError(t, err)

	res, err := svc.StateAt(ctx, "ent", t0.AddDate(-1, 0, 0), QueryOptions{Save: true})
	require.NoError(t, err)
	assert.Equal(t, state.Backward, res.Snapshot.Direction)
	assert.Empty(t, res.VersionID)

	_, err = svc.StateAt(ctx, "ent", time.Time{}, QueryOptions{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCatalog(t *testing.T) {
	svc, _ := newService(t, false)
	entries := svc.Catalog(context.Background())
	require.Len(t, entries, catalog.Default().Len())
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].ID, entries[i].ID)
	}
}
