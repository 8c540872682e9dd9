package engine

import (
	"context"
	"errors"

	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/model"
)

func (e *Engine) applyNote(ctx context.Context, u *model.User, key docstore.Filter, m NoteMutation) (*Result, error) {
	switch m.Op {
	case OpCreate:
		return e.createNote(ctx, u, key, m.Note)
	case OpEdit:
		return e.editNote(ctx, u, key, m.Note)
	case OpDelete:
		return e.deleteNote(ctx, key)
	}
	return nil, validationf("unknown operation %q", m.Op)
}

func (e *Engine) createNote(ctx context.Context, u *model.User, key docstore.Filter, note string) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day != nil && day.Note != nil {
		return nil, conflict(MsgNoteExists)
	}

	outcome, err := e.upsert(ctx, key.And(docstore.Missing("note")), docstore.Update{
		Set: map[string]any{"note": note},
		SetOnInsert: map[string]any{
			"_id":       e.newID(),
			"entries":   []any{},
			"variables": []any{},
		},
	})
	if errors.Is(err, docstore.ErrConflict) {
		return nil, conflict(MsgNoteExists)
	}
	if err != nil {
		return nil, internal("create note", err)
	}

	e.recordMentions(ctx, u, note)
	return e.finish(ctx, key, outcome, "Note created", "")
}

func (e *Engine) editNote(ctx context.Context, u *model.User, key docstore.Filter, note string) (*Result, error) {
	res, err := e.days.UpdateOne(ctx, key.And(docstore.Exists("note")),
		docstore.Update{Set: map[string]any{"note": note}}, docstore.UpdateOptions{})
	if err != nil {
		return nil, internal("edit note", err)
	}
	if res.Matched == 0 {
		return nil, notFound(MsgNoteNotFound)
	}

	e.recordMentions(ctx, u, note)
	return e.finish(ctx, key, OutcomeUpdated, "Note updated", "")
}

func (e *Engine) deleteNote(ctx context.Context, key docstore.Filter) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day == nil || day.Note == nil {
		return nil, notFound(MsgNoteNotFound)
	}

	post := day.Clone()
	post.Note = nil

	outcome, err := e.remove(ctx, key, post, removal{
		facet:    model.FacetNote,
		present:  docstore.Exists("note"),
		update:   docstore.Update{Unset: []string{"note"}},
		notFound: MsgNoteNotFound,
	})
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, key, outcome, "Note deleted", "")
}
