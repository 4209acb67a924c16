// Package service coordinates the registry, the optional SQLite store and the
// derived analyses (risk, invariant eval) behind one API shared by the HTTP,
// gRPC and CLI surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/eval"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/logging"
	"github.com/danielpatrickdp/eventsim/internal/risk"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/danielpatrickdp/eventsim/internal/store"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("eventsim.service")

// ErrInvalidInput is returned for requests that fail validation.
var ErrInvalidInput = errors.New("invalid input")

// #region types
// EventInput is a request to append one event. Either Type or Custom must be set.
type EventInput struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type" validate:"required_without=Custom"`
	Custom     *event.Spec       `json:"custom,omitempty"`
	Severity   float64           `json:"severity"`
	Timestamp  time.Time         `json:"timestamp" validate:"required"`
	BaseShifts []develop.Request `json:"base_shifts,omitempty"`
}

// QueryOptions controls side effects of a state query.
type QueryOptions struct {
	Save   bool   // persist the snapshot when a store is configured
	Source string // provenance tag: http, grpc, cli
}

// StateResult is a computed snapshot with its derived analyses.
type StateResult struct {
	Snapshot  engine.Snapshot `json:"snapshot"`
	Risk      risk.Status     `json:"risk"`
	Eval      eval.EvalResult `json:"eval"`
	Digest    string          `json:"digest"`
	VersionID string          `json:"version_id,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	reg      *engine.Registry
	tbl      *catalog.Table
	store    *store.Store
	eval     *eval.EvalHarness
	validate *validator.Validate
	log      *slog.Logger
}

// #endregion types

// New creates a service. st may be nil, in which case nothing is persisted.
func New(reg *engine.Registry, tbl *catalog.Table, st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tbl == nil {
		tbl = catalog.Default()
	}
	return &Service{
		reg:      reg,
		tbl:      tbl,
		store:    st,
		eval:     eval.NewEvalHarness(eval.DefaultEvalConfig()),
		validate: validator.New(),
		log:      logger,
	}
}

// Registry returns the underlying registry.
func (s *Service) Registry() *engine.Registry {
	return s.reg
}

// #region entities
// CreateEntity registers a new anchor, persisting it first when a store is set.
// Anchor values are clamped into their ranges.
func (s *Service) CreateEntity(ctx context.Context, a state.Anchor) (state.Anchor, error) {
	_, span := tracer.Start(ctx, "service.CreateEntity",
		trace.WithAttributes(attribute.String("entity.id", a.EntityID)),
	)
	defer span.End()

	if a.EntityID == "" || a.Timestamp.IsZero() {
		err := fmt.Errorf("%w: anchor requires entity_id and timestamp", ErrInvalidInput)
		fail(span, err)
		return state.Anchor{}, err
	}
	a.Timestamp = a.Timestamp.UTC()
	a.State = a.State.Clamp()
	a.Traits = a.Traits.Clamp()

	if _, err := s.reg.Anchor(a.EntityID); err == nil {
		err = fmt.Errorf("%w: %s", engine.ErrAnchorExists, a.EntityID)
		fail(span, err)
		return state.Anchor{}, err
	}
	if s.store != nil {
		if err := s.store.SaveAnchor(a); err != nil {
			fail(span, err)
			return state.Anchor{}, err
		}
	}
	if err := s.reg.SetAnchor(a); err != nil {
		fail(span, err)
		return state.Anchor{}, err
	}
	s.log.Info("entity created", "entity", a.EntityID, "anchor_at", a.Timestamp)
	return a, nil
}

// Entity returns an entity's anchor.
func (s *Service) Entity(ctx context.Context, id string) (state.Anchor, error) {
	return s.reg.Anchor(id)
}

// Entities lists registered entity ids in sorted order.
func (s *Service) Entities(ctx context.Context) []string {
	return s.reg.Entities()
}

// #endregion entities

// #region events
// AppendEvent validates in, persists it when a store is set and appends it to the
// entity's timeline.
func (s *Service) AppendEvent(ctx context.Context, entityID string, in EventInput) (event.Event, error) {
	_, span := tracer.Start(ctx, "service.AppendEvent",
		trace.WithAttributes(
			attribute.String("entity.id", entityID),
			attribute.String("event.type", in.Type),
		),
	)
	defer span.End()

	if err := s.validate.Struct(in); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		fail(span, err)
		return event.Event{}, err
	}

	ev := s.build(entityID, in)
	anchor, err := s.reg.Anchor(entityID)
	if err != nil {
		fail(span, err)
		return event.Event{}, err
	}
	if err := checkShifts(anchor, ev.BaseShifts); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidInput, err)
		fail(span, err)
		return event.Event{}, err
	}
	if _, err := ev.Spec(s.tbl); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidInput, err)
		fail(span, err)
		return event.Event{}, err
	}
	if s.store != nil {
		if err := s.store.AppendEvent(ev); err != nil {
			fail(span, err)
			return event.Event{}, err
		}
	}
	if err := s.reg.Append(ev); err != nil {
		fail(span, err)
		return event.Event{}, err
	}
	span.SetAttributes(attribute.String("event.id", ev.ID))
	s.log.Info("event appended", "entity", entityID, "event", ev.ID, "type", ev.Type, "at", ev.Timestamp)
	return ev, nil
}

func (s *Service) build(entityID string, in EventInput) event.Event {
	at := in.Timestamp.UTC()
	var ev event.Event
	if in.Custom != nil {
		ev = event.NewCustom(*in.Custom, entityID, at, in.Severity, in.BaseShifts...)
	} else {
		ev = event.New(in.Type, entityID, at, in.Severity, in.BaseShifts...)
	}
	if in.ID != "" {
		ev.ID = in.ID
	}
	return ev
}

// checkShifts rejects base-shift requests the pipeline cannot place: unknown
// traits, negative ages, and a missing age when the anchor has no birth date to
// derive it from.
func checkShifts(anchor state.Anchor, shifts []develop.Request) error {
	for i, req := range shifts {
		switch {
		case !req.Trait.Valid():
			return fmt.Errorf("base shift %d: unknown trait", i)
		case req.Age < 0:
			return fmt.Errorf("base shift %d: negative age %.2f", i, req.Age)
		case req.Age == 0 && anchor.BirthDate.IsZero():
			return fmt.Errorf("base shift %d: age unknown, set age or the anchor's birth_date", i)
		}
	}
	return nil
}

// Events returns the entity's timeline in timestamp order.
func (s *Service) Events(ctx context.Context, entityID string) ([]event.Event, error) {
	return s.reg.Events(entityID)
}

// #endregion events

// #region state
// StateAt computes the entity's state at at, classifies it and checks its
// invariants. The previous persisted snapshot, if any, is the eval baseline.
// Query provenance is logged to the store; a logging failure is not returned.
func (s *Service) StateAt(ctx context.Context, entityID string, at time.Time, opts QueryOptions) (StateResult, error) {
	_, span := tracer.Start(ctx, "service.StateAt",
		trace.WithAttributes(
			attribute.String("entity.id", entityID),
			attribute.String("query.at", at.UTC().Format(time.RFC3339Nano)),
			attribute.Bool("query.save", opts.Save),
		),
	)
	defer span.End()

	if at.IsZero() {
		err := fmt.Errorf("%w: zero query time", ErrInvalidInput)
		fail(span, err)
		return StateResult{}, err
	}
	at = at.UTC()

	snap, err := s.reg.StateAt(entityID, at)
	if err != nil {
		fail(span, err)
		s.provenance(logging.QueryEntry{EntityID: entityID, QueryAt: at, Source: opts.Source, Error: err.Error()})
		return StateResult{}, err
	}

	res := StateResult{Snapshot: snap, Risk: risk.Assess(snap), Digest: snap.Digest()}
	res.Eval = s.eval.Run(snap, s.previous(entityID))
	if !res.Eval.Passed {
		s.log.Warn("snapshot failed eval", "entity", entityID, "at", at, "reason", res.Eval.Reason)
	}

	if opts.Save && s.store != nil {
		rec, err := s.store.SaveSnapshot(snap)
		if err != nil {
			fail(span, err)
			return StateResult{}, err
		}
		res.VersionID = rec.VersionID
	}

	span.SetAttributes(
		attribute.String("query.direction", snap.Direction.String()),
		attribute.Int("query.in_scope", len(snap.InScope)),
	)
	s.provenance(logging.QueryEntry{
		EntityID:  entityID,
		QueryAt:   at,
		Direction: snap.Direction.String(),
		InScope:   len(snap.InScope),
		Digest:    res.Digest,
		Source:    opts.Source,
	})
	return res, nil
}

func (s *Service) previous(entityID string) *engine.Snapshot {
	if s.store == nil {
		return nil
	}
	rec, err := s.store.LatestSnapshot(entityID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("latest snapshot lookup failed", "entity", entityID, "error", err)
		}
		return nil
	}
	return &rec.Snapshot
}

func (s *Service) provenance(entry logging.QueryEntry) {
	if s.store == nil {
		return
	}
	if err := logging.LogQuery(s.store.DB(), entry); err != nil {
		s.log.Warn("query provenance not logged", "entity", entry.EntityID, "error", err)
	}
}

// #endregion state

// #region catalog
// Catalog returns every named event type in id order.
func (s *Service) Catalog(ctx context.Context) []catalog.Entry {
	ids := s.tbl.IDs()
	out := make([]catalog.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.tbl.Entry(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// #endregion catalog

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
