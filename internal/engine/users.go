package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/model"
)

// palettePath maps a facet to the palette array holding its colors.
func palettePath(facet model.Facet) string {
	if facet == model.FacetVariable {
		return "colors.variables"
	}
	return "colors.activities"
}

// ensureUser loads the user, creating it with an empty palette, a fixed note
// color and no names on first sight.
func (e *Engine) ensureUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := e.users.FindOne(ctx, docstore.Where(docstore.Eq("_id", userID)), &u)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, internal("load user", err)
	}

	noteColor, stage, err := e.colors.Assign(nil)
	if err != nil {
		return nil, internal("assign note color", err)
	}
	e.observer.ColorAssigned(stage)

	_, err = e.users.UpdateOne(ctx, docstore.Where(docstore.Eq("_id", userID)), docstore.Update{
		SetOnInsert: map[string]any{
			"colors": model.Palette{
				Activities: []model.NamedColor{},
				Variables:  []model.NamedColor{},
				Note:       noteColor,
			},
			"names":     []string{},
			"createdAt": e.now().UTC(),
		},
	}, docstore.UpdateOptions{Upsert: true})
	if err != nil && !errors.Is(err, docstore.ErrConflict) {
		return nil, internal("create user", err)
	}

	if err := e.users.FindOne(ctx, docstore.Where(docstore.Eq("_id", userID)), &u); err != nil {
		return nil, internal("load user", err)
	}
	e.log.Info().Str("user", userID).Msg("created user")
	return &u, nil
}

// ensureColor gives name a color in the facet's namespace if it has none yet.
// The in-memory palette is updated so later calls in the same request see it.
func (e *Engine) ensureColor(ctx context.Context, u *model.User, facet model.Facet, name string) error {
	if _, ok := u.Colors.ColorFor(facet, name); ok {
		return nil
	}

	color, stage, err := e.colors.Assign(u.Colors.InUse())
	if err != nil {
		return internal("assign color", err)
	}
	e.observer.ColorAssigned(stage)
	if stage != ColorRandom {
		e.log.Warn().Str("user", u.ID).Str("name", name).Str("stage", string(stage)).
			Msg("color sampling exhausted, used fallback")
	}

	path := palettePath(facet)
	nc := model.NamedColor{Name: name, Color: color}
	_, err = e.users.UpdateOne(ctx,
		docstore.Where(docstore.Eq("_id", u.ID), docstore.NoElemMatch(path, map[string]any{"name": name})),
		docstore.Update{Push: map[string]any{path: nc}},
		docstore.UpdateOptions{},
	)
	if err != nil {
		return internal(fmt.Sprintf("save %s color", facet), err)
	}

	if facet == model.FacetVariable {
		u.Colors.Variables = append(u.Colors.Variables, nc)
	} else {
		u.Colors.Activities = append(u.Colors.Activities, nc)
	}
	return nil
}

// recordMentions adds the new @names in texts to the user's name set. It runs
// after the facet write succeeded, so failures are logged rather than returned.
func (e *Engine) recordMentions(ctx context.Context, u *model.User, texts ...string) {
	names := ExtractMentions(u.Names, texts...)
	if len(names) == 0 {
		return
	}
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	_, err := e.users.UpdateOne(ctx, docstore.Where(docstore.Eq("_id", u.ID)),
		docstore.Update{AddToSet: map[string][]any{"names": values}}, docstore.UpdateOptions{})
	if err != nil {
		e.log.Error().Err(err).Str("user", u.ID).Strs("names", names).Msg("save mentions")
		return
	}
	u.Names = append(u.Names, names...)
	e.log.Debug().Str("user", u.ID).Strs("names", names).Msg("recorded mentions")
}
