package engine

import (
	"context"

	"github.com/lazypower/daybook/internal/docstore"
	"github.com/lazypower/daybook/internal/model"
)

// removal describes taking one item out of one facet of a day document.
type removal struct {
	facet model.Facet
	// present holds while the item is still in the stored document.
	present docstore.Cond
	// update removes the item in place.
	update   docstore.Update
	notFound string
}

// emptyDay matches a document whose every facet is empty.
func emptyDay() []docstore.Cond {
	return []docstore.Cond{
		docstore.LenLess("entries", 1),
		docstore.LenLess("variables", 1),
		docstore.Missing("note"),
		docstore.Missing("location"),
	}
}

// onlyItem matches a document in which r's item is the last thing left.
func onlyItem(r removal) []docstore.Cond {
	conds := []docstore.Cond{r.present}
	for _, c := range emptyDay() {
		switch {
		case r.facet == model.FacetActivity && c.Path == "entries":
			c = docstore.LenLess("entries", 2)
		case r.facet == model.FacetVariable && c.Path == "variables":
			c = docstore.LenLess("variables", 2)
		case r.facet == model.FacetNote && c.Path == "note":
			continue
		}
		conds = append(conds, c)
	}
	return conds
}

// remove applies r to the stored document. post is the document as it will
// look after the removal; when it is empty the document is deleted instead of
// being left as an empty shell. The delete is guarded on the stored state
// still matching post, and a final guarded prune removes a document emptied by
// concurrent removals.
func (e *Engine) remove(ctx context.Context, key docstore.Filter, post *model.DayDocument, r removal) (Outcome, error) {
	if post.Empty() {
		n, err := e.days.DeleteOne(ctx, key.And(onlyItem(r)...))
		if err != nil {
			return "", internal("delete day", err)
		}
		if n > 0 {
			e.log.Debug().Str("facet", string(r.facet)).Msg("deleted empty day")
			return OutcomeDeleted, nil
		}
	}

	res, err := e.days.UpdateOne(ctx, key.And(r.present), r.update, docstore.UpdateOptions{})
	if err != nil {
		return "", internal("update day", err)
	}
	if res.Matched == 0 {
		return "", notFound(r.notFound)
	}

	n, err := e.days.DeleteOne(ctx, key.And(emptyDay()...))
	if err != nil {
		return "", internal("prune day", err)
	}
	if n > 0 {
		e.log.Info().Str("facet", string(r.facet)).Msg("pruned day emptied by concurrent removals")
		return OutcomeDeleted, nil
	}
	return OutcomeUpdated, nil
}
