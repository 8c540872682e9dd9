package engine

import (
	"time"

	"github.com/lazypower/daybook/internal/model"
)

// Op is the kind of change a MutationRequest asks for.
type Op string

const (
	OpCreate Op = "create"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// Day identifies a calendar day.
type Day struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Date returns the day as midnight UTC, rejecting dates that do not exist.
func (d Day) Date() (time.Time, error) {
	if d.Year < 1 || d.Year > 9999 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return time.Time{}, validationf("invalid date %04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	t := model.DayKey(d.Year, d.Month, d.Day)
	if t.Day() != d.Day {
		return time.Time{}, validationf("invalid date %04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	return t, nil
}

// DayOf returns the Day containing t in UTC.
func DayOf(t time.Time) Day {
	t = t.UTC()
	return Day{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// MutationRequest is one of ActivityMutation, VariableMutation or NoteMutation.
type MutationRequest interface {
	Facet() model.Facet
	Operation() Op
	Target() Day
}

// ActivityMutation creates, edits or deletes one activity entry. ID selects
// the entry for edit and delete.
type ActivityMutation struct {
	Op          Op
	Day         Day
	ID          string
	Activity    string
	Description string
	Start       string
	End         string
	Location    *model.Location
}

// VariableMutation creates, edits or deletes the reading for Variable.
type VariableMutation struct {
	Op       Op
	Day      Day
	Variable string
	Value    string
}

// NoteMutation creates, edits or deletes the day's note.
type NoteMutation struct {
	Op   Op
	Day  Day
	Note string
}

func (m ActivityMutation) Facet() model.Facet { return model.FacetActivity }
func (m ActivityMutation) Operation() Op      { return m.Op }
func (m ActivityMutation) Target() Day        { return m.Day }

func (m VariableMutation) Facet() model.Facet { return model.FacetVariable }
func (m VariableMutation) Operation() Op      { return m.Op }
func (m VariableMutation) Target() Day        { return m.Day }

func (m NoteMutation) Facet() model.Facet { return model.FacetNote }
func (m NoteMutation) Operation() Op      { return m.Op }
func (m NoteMutation) Target() Day        { return m.Day }

// Outcome is what happened to the day document.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
)

// Result reports a successful mutation. Day is the document after the write,
// nil when it was deleted.
type Result struct {
	Outcome Outcome
	Message string
	EntryID string
	Day     *model.DayDocument
}
