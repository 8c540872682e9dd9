// Package engine mutates the per-day aggregate: one engine per facet
// (activities, variable readings, the note) plus the shared time derivation,
// color assignment, mention tracking and document lifecycle rules.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/model"
)

// Collection names.
const (
	DaysCollection  = "days"
	UsersCollection = "users"
)

// MaxRangeDays caps how many days one Range call may cover.
const MaxRangeDays = 366

// Observer receives engine events, e.g. for metrics.
type Observer interface {
	Mutation(facet model.Facet, op Op, result string)
	ColorAssigned(stage ColorStage)
}

type nopObserver struct{}

func (nopObserver) Mutation(model.Facet, Op, string) {}
func (nopObserver) ColorAssigned(ColorStage)         {}

// Engine applies mutation requests to day documents. It holds no per-user
// state; the store's conditional writes serialize concurrent requests.
type Engine struct {
	days     docstore.Collection
	users    docstore.Collection
	colors   *ColorAssigner
	log      zerolog.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithColorAssigner replaces the default randomly seeded assigner.
func WithColorAssigner(a *ColorAssigner) Option { return func(e *Engine) { e.colors = a } }

// WithObserver registers an event observer.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDs sets the id generator for documents and entries.
func WithIDs(newID func() string) Option { return func(e *Engine) { e.newID = newID } }

// New creates an Engine on top of store.
func New(store docstore.Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		days:     store.Collection(DaysCollection, "userId", "date"),
		users:    store.Collection(UsersCollection),
		log:      log.With().Str("component", "engine").Logger(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.colors == nil {
		e.colors = NewColorAssigner(rand.NewPCG(rand.Uint64(), rand.Uint64()), DefaultColorAttempts)
	}
	return e
}

// Apply validates req and writes it to the day document of userID.
func (e *Engine) Apply(ctx context.Context, userID string, req MutationRequest) (*Result, error) {
	res, err := e.apply(ctx, userID, req)
	if req != nil {
		result := KindOf(err).String()
		if err == nil {
			result = string(res.Outcome)
		}
		e.observer.Mutation(req.Facet(), req.Operation(), result)
	}
	if err != nil && KindOf(err) == KindInternal {
		e.log.Error().Err(err).Str("user", userID).Msg("mutation failed")
	}
	return res, err
}

func (e *Engine) apply(ctx context.Context, userID string, req MutationRequest) (*Result, error) {
	if userID == "" {
		return nil, validationf("user id is required")
	}
	if req == nil {
		return nil, validationf("mutation is required")
	}
	date, err := req.Target().Date()
	if err != nil {
		return nil, err
	}
	req, err = normalize(req)
	if err != nil {
		return nil, err
	}
	u, err := e.ensureUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := dayKey(userID, date)

	switch m := req.(type) {
	case ActivityMutation:
		return e.applyActivity(ctx, u, key, m)
	case VariableMutation:
		return e.applyVariable(ctx, u, key, m)
	case NoteMutation:
		return e.applyNote(ctx, u, key, m)
	}
	return nil, validationf("unsupported mutation %T", req)
}

// Day returns the document for one day.
func (e *Engine) Day(ctx context.Context, userID string, d Day) (*model.DayDocument, error) {
	date, err := d.Date()
	if err != nil {
		return nil, err
	}
	day, err := e.loadDay(ctx, dayKey(userID, date))
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, notFound(MsgDayNotFound)
	}
	return day, nil
}

// Range returns the documents from..to inclusive, ordered by date.
func (e *Engine) Range(ctx context.Context, userID string, from, to Day) ([]model.DayDocument, error) {
	start, err := from.Date()
	if err != nil {
		return nil, err
	}
	end, err := to.Date()
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, validationf("range end is before its start")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > MaxRangeDays {
		return nil, validationf("range covers %d days, at most %d allowed", days, MaxRangeDays)
	}

	out := []model.DayDocument{}
	err = e.days.Find(ctx, docstore.Where(
		docstore.Eq("userId", userID),
		docstore.Gte("date", start),
		docstore.Lt("date", end.AddDate(0, 0, 1)),
	), docstore.Sort{{Path: "date"}}, &out)
	if err != nil {
		return nil, internal("list days", err)
	}
	return out, nil
}

// User returns the user's palette and names, creating the user if needed.
func (e *Engine) User(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, validationf("user id is required")
	}
	return e.ensureUser(ctx, userID)
}

func dayKey(userID string, date time.Time) docstore.Filter {
	return docstore.Where(docstore.Eq("userId", userID), docstore.Eq("date", date))
}

// loadDay returns the stored document or nil when there is none.
func (e *Engine) loadDay(ctx context.Context, key docstore.Filter) (*model.DayDocument, error) {
	var day model.DayDocument
	err := e.days.FindOne(ctx, key, &day)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("load day", err)
	}
	return &day, nil
}

// upsert writes u to the day matching f, creating the day when absent. The
// first write of a day can lose the insert race to a concurrent request; it
// is re-run once so that it applies to the winner's document.
func (e *Engine) upsert(ctx context.Context, f docstore.Filter, u docstore.Update) (Outcome, error) {
	res, err := e.days.UpdateOne(ctx, f, u, docstore.UpdateOptions{Upsert: true})
	if errors.Is(err, docstore.ErrConflict) {
		res, err = e.days.UpdateOne(ctx, f, u, docstore.UpdateOptions{Upsert: true})
	}
	if err != nil {
		return "", err
	}
	if res.UpsertedID != "" {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

// finish builds the Result, reading back the document unless it was deleted.
func (e *Engine) finish(ctx context.Context, key docstore.Filter, outcome Outcome, msg, entryID string) (*Result, error) {
	res := &Result{Outcome: outcome, EntryID: entryID, Message: msg}
	if outcome == OutcomeDeleted {
		return res, nil
	}
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	res.Day = day
	return res, nil
}
