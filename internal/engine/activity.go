package engine

import (
	"context"
	"errors"

	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/model"
)

func (e *Engine) applyActivity(ctx context.Context, u *model.User, key docstore.Filter, m ActivityMutation) (*Result, error) {
	switch m.Op {
	case OpCreate:
		return e.createActivity(ctx, u, key, m)
	case OpEdit:
		return e.editActivity(ctx, u, key, m)
	case OpDelete:
		return e.deleteActivity(ctx, key, m)
	}
	return nil, validationf("unknown operation %q", m.Op)
}

func activityPair(activity, start string) map[string]any {
	return map[string]any{"activity": activity, "start": start}
}

func (e *Engine) createActivity(ctx context.Context, u *model.User, key docstore.Filter, m ActivityMutation) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day != nil {
		if day.HasActivityAt(m.Activity, m.Start) {
			return nil, conflict(MsgActivityExists)
		}
		if len(day.Entries) >= model.MaxEntries {
			return nil, validationf(MsgTooManyEntries)
		}
	}

	if err := e.ensureColor(ctx, u, model.FacetActivity, m.Activity); err != nil {
		return nil, err
	}

	entry := model.Entry{
		ID:          e.newID(),
		Activity:    m.Activity,
		Description: m.Description,
		Start:       m.Start,
		End:         m.End,
		Location:    m.Location,
	}
	f := key.And(
		docstore.NoElemMatch("entries", activityPair(entry.Activity, entry.Start)),
		docstore.LenLess("entries", model.MaxEntries),
	)
	outcome, err := e.upsert(ctx, f, docstore.Update{
		Push: map[string]any{"entries": entry},
		SetOnInsert: map[string]any{
			"_id":       e.newID(),
			"variables": []any{},
		},
	})
	if errors.Is(err, docstore.ErrConflict) {
		return nil, e.explainActivityConflict(ctx, key)
	}
	if err != nil {
		return nil, internal("create activity", err)
	}

	e.recordMentions(ctx, u, entry.Description)
	return e.finish(ctx, key, outcome, "Activity created", entry.ID)
}

func (e *Engine) editActivity(ctx context.Context, u *model.User, key docstore.Filter, m ActivityMutation) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, notFound(MsgActivityNotFound)
	}
	i := day.EntryByID(m.ID)
	if i < 0 {
		return nil, notFound(MsgActivityNotFound)
	}
	cur := day.Entries[i]
	pairChanged := cur.Activity != m.Activity || cur.Start != m.Start
	if pairChanged && day.HasActivityAt(m.Activity, m.Start) {
		return nil, conflict(MsgActivityExists)
	}

	if err := e.ensureColor(ctx, u, model.FacetActivity, m.Activity); err != nil {
		return nil, err
	}

	f := key.And(docstore.ElemMatch("entries", map[string]any{"id": m.ID}))
	if pairChanged {
		f = f.And(docstore.NoElemMatch("entries", activityPair(m.Activity, m.Start)))
	}
	upd := docstore.Update{Set: map[string]any{
		"entries.$[e].activity":    m.Activity,
		"entries.$[e].description": m.Description,
		"entries.$[e].start":       m.Start,
		"entries.$[e].end":         m.End,
	}}
	if m.Location != nil {
		upd.Set["entries.$[e].location"] = m.Location
	} else {
		upd.Unset = []string{"entries.$[e].location"}
	}

	res, err := e.days.UpdateOne(ctx, f, upd, docstore.UpdateOptions{
		ArrayFilters: []docstore.ArrayFilter{{Ident: "e", Match: map[string]any{"id": m.ID}}},
	})
	if err != nil {
		return nil, internal("edit activity", err)
	}
	if res.Matched == 0 {
		return nil, e.explainActivityEditMiss(ctx, key, m.ID)
	}

	e.recordMentions(ctx, u, m.Description)
	return e.finish(ctx, key, OutcomeUpdated, "Activity updated", m.ID)
}

func (e *Engine) deleteActivity(ctx context.Context, key docstore.Filter, m ActivityMutation) (*Result, error) {
	id := m.ID
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, notFound(MsgActivityNotFound)
	}

	post := day.Clone()
	kept := post.Entries[:0]
	for _, en := range post.Entries {
		if en.ID != id {
			kept = append(kept, en)
		}
	}
	if len(kept) == len(day.Entries) {
		return nil, notFound(MsgActivityNotFound)
	}
	post.Entries = kept

	outcome, err := e.remove(ctx, key, post, removal{
		facet:    model.FacetActivity,
		present:  docstore.ElemMatch("entries", map[string]any{"id": id}),
		update:   docstore.Update{Pull: map[string]map[string]any{"entries": {"id": id}}},
		notFound: MsgActivityNotFound,
	})
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, key, outcome, "Activity deleted", id)
}

// explainActivityConflict turns a failed guarded create into the message the
// stored document justifies.
func (e *Engine) explainActivityConflict(ctx context.Context, key docstore.Filter) error {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return err
	}
	if day != nil && len(day.Entries) >= model.MaxEntries {
		return validationf(MsgTooManyEntries)
	}
	return conflict(MsgActivityExists)
}

func (e *Engine) explainActivityEditMiss(ctx context.Context, key docstore.Filter, id string) error {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return err
	}
	if day == nil || day.EntryByID(id) < 0 {
		return notFound(MsgActivityNotFound)
	}
	return conflict(MsgActivityExists)
}
