package engine

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return New(catalog.Default(), Options{})
}

func baseAnchor() *state.Anchor {
	return &state.Anchor{EntityID: "ent", Timestamp: t0}
}

func valence(impact, permanence float64, chronic bool) event.Spec {
	var s event.Spec
	s.Impact[state.Valence] = impact
	s.Permanence[state.Valence] = permanence
	s.Chronic[state.Valence] = chronic
	return s
}

func custom(spec event.Spec, at time.Time, severity float64, shifts ...develop.Request) event.Event {
	return event.NewCustom(spec, "ent", at, severity, shifts...)
}

// #region scope

func TestStateAt_NoAnchor(t *testing.T) {
	_, err := newEngine().StateAt(nil, nil, t0)
	require.ErrorIs(t, err, ErrNoAnchor)
}

func TestStateAt_DirectionalScope(t *testing.T) {
	eng := newEngine()
	anchor := baseAnchor()
	a := custom(valence(-0.5, 0.2, false), t0.AddDate(-5, 0, 0), 1)
	b := custom(valence(0.4, 0.5, false), t0.AddDate(5, 0, 0), 1)
	events := []event.Event{a, b}

	// Between the anchor and either event: nothing in scope, anchor baseline.
	for _, at := range []time.Time{t0.AddDate(-2, 0, 0), t0.AddDate(2, 0, 0), t0} {
		snap, err := eng.StateAt(anchor, events, at)
		require.NoError(t, err)
		assert.Empty(t, snap.InScope)
		assert.Equal(t, anchor.State, snap.State)
		assert.Equal(t, anchor.Traits, snap.Traits)
	}

	before, err := eng.StateAt(anchor, events, t0.AddDate(-6, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, state.Backward, before.Direction)
	assert.Equal(t, []string{a.ID}, before.InScope)
	// A's permanent -0.10 is removed; its acute part had fully decayed by the anchor.
	assert.InDelta(t, 0.10, before.State[state.Valence], eps)

	after, err := eng.StateAt(anchor, events, t0.AddDate(6, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, state.Forward, after.Direction)
	assert.Equal(t, []string{b.ID}, after.InScope)
	assert.InDelta(t, 0.20, after.State[state.Valence], eps)
}

func TestStateAt_UnorderedInputIsSorted(t *testing.T) {
	eng := newEngine()
	late := custom(valence(-0.2, 1, false), t0.Add(2*time.Hour), 1)
	early := custom(valence(-0.2, 1, false), t0.Add(time.Hour), 1)

	snap, err := eng.StateAt(baseAnchor(), []event.Event{late, early}, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{early.ID, late.ID}, snap.InScope)
}

func TestStateAt_UnknownEventType(t *testing.T) {
	ev := event.New("no_such_event", "ent", t0.Add(time.Hour), 1)
	_, err := newEngine().StateAt(baseAnchor(), []event.Event{ev}, t0.Add(2*time.Hour))
	require.ErrorIs(t, err, catalog.ErrUnknownEventType)
}

// #endregion scope

// #region decay

func TestStateAt_AcuteAndChronicDecay(t *testing.T) {
	eng := newEngine()
	acute := custom(valence(-1, 0, false), t0, 1)
	chronic := custom(valence(-1, 0, true), t0, 1)

	// Valence acute half-life is 6h; chronic stretches it to 24h.
	snap, err := eng.StateAt(baseAnchor(), []event.Event{acute}, t0.Add(6*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -0.5, snap.State[state.Valence], eps)

	snap, err = eng.StateAt(baseAnchor(), []event.Event{chronic}, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -0.5, snap.State[state.Valence], eps)

	snap, err = eng.StateAt(baseAnchor(), []event.Event{acute}, t0)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, snap.State[state.Valence], eps)
}

func TestStateAt_RepeatedEventsAccumulatePermanent(t *testing.T) {
	eng := newEngine()
	var events []event.Event
	for i := 0; i < 5; i++ {
		events = append(events, custom(valence(-0.55, 0.05, false), t0.AddDate(0, 0, 7*i), 1))
	}

	snap, err := eng.StateAt(baseAnchor(), events, t0.AddDate(1, 0, 0))
	require.NoError(t, err)
	v := snap.State[state.Valence]
	assert.InDelta(t, -0.1375, v, eps)
	assert.Greater(t, v, -0.20)
	assert.Less(t, v, -0.10)
}

func TestStateAt_ClampsToRange(t *testing.T) {
	anchor := baseAnchor()
	anchor.State[state.Valence] = -0.9
	anchor.State[state.AcquiredCapability] = 0.9

	var s event.Spec
	s.Impact[state.Valence] = -1
	s.Permanence[state.Valence] = 1
	s.Impact[state.AcquiredCapability] = 1

	snap, err := newEngine().StateAt(anchor, []event.Event{custom(s, t0, 1)}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, -1.0, snap.State[state.Valence])
	assert.Equal(t, 1.0, snap.State[state.AcquiredCapability])
	assert.True(t, snap.State.InRange())
}

func TestStateAt_CapabilityNonDecreasingOverTime(t *testing.T) {
	eng := newEngine()
	anchor := baseAnchor()
	anchor.State[state.AcquiredCapability] = 0.4

	events := []event.Event{
		event.New("witness_violence_physical", "ent", t0.AddDate(-3, 0, 0), 0.7),
		event.New("suffer_injury_accidental", "ent", t0.AddDate(-1, 0, 0), 1),
		event.New("achieve_goal_major", "ent", t0.AddDate(0, 6, 0), 1),
		event.New("survive_attempt_suicide", "ent", t0.AddDate(1, 0, 0), 0.5),
		event.New("experience_combat_military", "ent", t0.AddDate(2, 0, 0), 0.8),
	}

	prev := -1.0
	for m := -48; m <= 48; m += 3 {
		snap, err := eng.StateAt(anchor, events, t0.AddDate(0, m, 0))
		require.NoError(t, err)
		ac := snap.State[state.AcquiredCapability]
		assert.GreaterOrEqual(t, ac, prev, "month %d", m)
		assert.GreaterOrEqual(t, ac, 0.0)
		assert.LessOrEqual(t, ac, 1.0)
		prev = ac
	}
}

// #endregion decay

// #region traits

func TestStateAt_ForwardFormativeShift(t *testing.T) {
	ev := custom(event.Spec{}, t0.AddDate(0, 1, 0), 1,
		develop.Request{Trait: state.Emotionality, Raw: 0.1, Age: 40})

	snap, err := newEngine().StateAt(baseAnchor(), []event.Event{ev}, t0.AddDate(1, 0, 0))
	require.NoError(t, err)

	want := 0.1 * 0.9 / 0.65
	assert.InDelta(t, want, snap.Traits[state.Emotionality], eps)
	assert.InDelta(t, want, snap.TraitBudget[state.Emotionality], eps)
	require.Len(t, snap.Ledger, 1)
	assert.Equal(t, ev.ID, snap.Ledger[0].EventID)
	assert.False(t, snap.Ledger[0].Severe)
}

func TestStateAt_SevereShiftPartiallyRecovers(t *testing.T) {
	at := t0.AddDate(0, 1, 0)
	ev := custom(event.Spec{}, at, 1,
		develop.Request{Trait: state.Emotionality, Raw: 0.3, Age: 15})
	eng := newEngine()

	// 0.3 * 1.3 plasticity / 0.65 stability * 1.25 sensitive period.
	realized := 0.75
	checks := []struct {
		after time.Duration
		want  float64
	}{
		{0, realized},
		{90 * 24 * time.Hour, realized * (1 - 0.3*0.5)},
		{180 * 24 * time.Hour, realized * 0.7},
		{720 * 24 * time.Hour, realized * 0.7},
	}
	for _, c := range checks {
		snap, err := eng.StateAt(baseAnchor(), []event.Event{ev}, at.Add(c.after))
		require.NoError(t, err)
		require.Len(t, snap.Ledger, 1)
		assert.True(t, snap.Ledger[0].Severe)
		assert.InDelta(t, c.want, snap.Traits[state.Emotionality], eps, "after %s", c.after)
	}
}

func TestStateAt_BackwardSolvesStartingBudget(t *testing.T) {
	anchor := baseAnchor()
	anchor.Traits[state.Emotionality] = 0.5
	anchor.TraitBudget[state.Emotionality] = 0.3

	ev := custom(event.Spec{}, t0.AddDate(-1, 0, 0), 1,
		develop.Request{Trait: state.Emotionality, Raw: 0.1, Age: 40})

	snap, err := newEngine().StateAt(anchor, []event.Event{ev}, t0.AddDate(-2, 0, 0))
	require.NoError(t, err)

	m := 0.1 * 0.9 / 0.65
	start := (0.3 - m) / (1 - m)
	realized := m * (1 - start)

	assert.InDelta(t, start, snap.TraitBudget[state.Emotionality], eps)
	require.Len(t, snap.Ledger, 1)
	assert.InDelta(t, 0.3, snap.Ledger[0].CumulativeAfter, eps)
	assert.InDelta(t, 0.5-realized, snap.Traits[state.Emotionality], eps)
}

func TestStateAt_AgeFromBirthDate(t *testing.T) {
	anchor := baseAnchor()
	anchor.BirthDate = t0.AddDate(-40, 0, 0)
	at := t0.AddDate(0, 1, 0)
	ev := custom(event.Spec{}, at, 1, develop.Request{Trait: state.Openness, Raw: 0.05})

	snap, err := newEngine().StateAt(anchor, []event.Event{ev}, at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, snap.Ledger, 1)
	assert.InDelta(t, anchor.AgeAt(at), 40, 0.1)
	assert.InDelta(t, 0.05*0.9/0.85, snap.Traits[state.Openness], 1e-3)
}

func TestStateAt_CumulativeCapUnderAdversarialInput(t *testing.T) {
	var events []event.Event
	for i := 0; i < 200; i++ {
		events = append(events, custom(event.Spec{}, t0.Add(time.Duration(i)*time.Hour), 1,
			develop.Request{Trait: state.Emotionality, Raw: 5, Age: 15},
			develop.Request{Trait: state.Openness, Raw: -5, Age: 15}))
	}

	snap, err := newEngine().StateAt(baseAnchor(), events, t0.AddDate(2, 0, 0))
	require.NoError(t, err)
	for _, tr := range []state.Trait{state.Emotionality, state.Openness} {
		assert.LessOrEqual(t, snap.TraitBudget[tr], 1.0+1e-12)
	}
	for _, rec := range snap.Ledger {
		assert.LessOrEqual(t, rec.CumulativeAfter, 1.0+1e-12)
	}
	assert.True(t, snap.Traits.Clamp() == snap.Traits)
}

// #endregion traits

func TestStateAt_Idempotent(t *testing.T) {
	eng := newEngine()
	anchor := baseAnchor()
	anchor.BirthDate = t0.AddDate(-25, 0, 0)
	events := []event.Event{
		event.New("lose_job_fired", "ent", t0.AddDate(0, 0, 3), 0.8,
			develop.Request{Trait: state.Conscientiousness, Raw: -0.1}),
		event.New("receive_support_emotional", "ent", t0.AddDate(0, 0, 10), 0.6),
		event.New("end_relationship_romantic", "ent", t0.AddDate(0, -3, 0), 0.9),
	}

	for _, at := range []time.Time{t0.AddDate(0, -6, 0), t0.AddDate(0, 0, 12)} {
		first, err := eng.StateAt(anchor, events, at)
		require.NoError(t, err)
		second, err := eng.StateAt(anchor, events, at)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, first.Digest(), second.Digest())
	}
}
