package engine

import (
	"context"
	"errors"

	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/model"
)

func (e *Engine) applyVariable(ctx context.Context, u *model.User, key docstore.Filter, m VariableMutation) (*Result, error) {
	switch m.Op {
	case OpCreate:
		return e.createVariable(ctx, u, key, m.Variable, m.Value)
	case OpEdit:
		return e.editVariable(ctx, u, key, m.Variable, m.Value)
	case OpDelete:
		return e.deleteVariable(ctx, key, m.Variable)
	}
	return nil, validationf("unknown operation %q", m.Op)
}

func (e *Engine) createVariable(ctx context.Context, u *model.User, key docstore.Filter, name, value string) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day != nil && day.ReadingFor(name) >= 0 {
		return nil, conflict(MsgVariableExists)
	}

	if err := e.ensureColor(ctx, u, model.FacetVariable, name); err != nil {
		return nil, err
	}

	outcome, err := e.upsert(ctx,
		key.And(docstore.NoElemMatch("variables", map[string]any{"variable": name})),
		docstore.Update{
			Push: map[string]any{"variables": model.Reading{Variable: name, Value: value}},
			SetOnInsert: map[string]any{
				"_id":     e.newID(),
				"entries": []any{},
			},
		})
	if errors.Is(err, docstore.ErrConflict) {
		return nil, conflict(MsgVariableExists)
	}
	if err != nil {
		return nil, internal("create variable", err)
	}
	return e.finish(ctx, key, outcome, "Variable created", "")
}

func (e *Engine) editVariable(ctx context.Context, u *model.User, key docstore.Filter, name, value string) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day == nil || day.ReadingFor(name) < 0 {
		return nil, notFound(MsgVariableNotFound)
	}

	if err := e.ensureColor(ctx, u, model.FacetVariable, name); err != nil {
		return nil, err
	}

	res, err := e.days.UpdateOne(ctx,
		key.And(docstore.ElemMatch("variables", map[string]any{"variable": name})),
		docstore.Update{Set: map[string]any{"variables.$[v].value": value}},
		docstore.UpdateOptions{ArrayFilters: []docstore.ArrayFilter{
			{Ident: "v", Match: map[string]any{"variable": name}},
		}},
	)
	if err != nil {
		return nil, internal("edit variable", err)
	}
	if res.Matched == 0 {
		return nil, notFound(MsgVariableNotFound)
	}
	return e.finish(ctx, key, OutcomeUpdated, "Variable updated", "")
}

func (e *Engine) deleteVariable(ctx context.Context, key docstore.Filter, name string) (*Result, error) {
	day, err := e.loadDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, notFound(MsgVariableNotFound)
	}

	post := day.Clone()
	kept := post.Variables[:0]
	for _, r := range post.Variables {
		if r.Variable != name {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(day.Variables) {
		return nil, notFound(MsgVariableNotFound)
	}
	post.Variables = kept

	outcome, err := e.remove(ctx, key, post, removal{
		facet:    model.FacetVariable,
		present:  docstore.ElemMatch("variables", map[string]any{"variable": name}),
		update:   docstore.Update{Pull: map[string]map[string]any{"variables": {"variable": name}}},
		notFound: MsgVariableNotFound,
	})
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, key, outcome, "Variable deleted", "")
}
