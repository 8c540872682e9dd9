// Package model defines the day aggregate and the user aggregate that the
// mutation engines read and the document stores persist.
package model

import "time"

// Facet names one of the independent sub-resources of a DayDocument.
type Facet string

const (
	FacetActivity Facet = "activity"
	FacetVariable Facet = "variable"
	FacetNote     Facet = "note"
)

// MaxEntries caps the number of activity entries in one day.
const MaxEntries = 100

// DayDocument is the per-(user, date) aggregate.
type DayDocument struct {
	ID        string    `json:"_id" bson:"_id"`
	UserID    string    `json:"userId" bson:"userId"`
	Date      time.Time `json:"date" bson:"date"`
	Entries   []Entry   `json:"entries" bson:"entries"`
	Variables []Reading `json:"variables" bson:"variables"`
	Note      *string   `json:"note,omitempty" bson:"note,omitempty"`
	Location  *Location `json:"location,omitempty" bson:"location,omitempty"`
}

// Entry is one logged activity occurrence.
type Entry struct {
	ID          string    `json:"id" bson:"id"`
	Activity    string    `json:"activity" bson:"activity"`
	Description string    `json:"description" bson:"description"`
	Start       string    `json:"start" bson:"start"`
	End         string    `json:"end" bson:"end"`
	Location    *Location `json:"location,omitempty" bson:"location,omitempty"`
}

// Reading is the value of a named variable for the day.
type Reading struct {
	Variable string `json:"variable" bson:"variable"`
	Value    string `json:"value" bson:"value"`
}

// Location is owned by the saved-locations subsystem; the engines only carry it.
type Location struct {
	Name      string  `json:"name" bson:"name"`
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Empty reports whether every facet of the document is empty, which means
// the document must not exist.
func (d *DayDocument) Empty() bool {
	return len(d.Entries) == 0 && len(d.Variables) == 0 && d.Note == nil && d.Location == nil
}

// EntryByID returns the index of the entry with the given id, or -1.
func (d *DayDocument) EntryByID(id string) int {
	for i := range d.Entries {
		if d.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

// HasActivityAt reports whether an entry for activity already starts at start.
func (d *DayDocument) HasActivityAt(activity, start string) bool {
	for _, e := range d.Entries {
		if e.Activity == activity && e.Start == start {
			return true
		}
	}
	return false
}

// ReadingFor returns the index of the reading for variable, or -1.
func (d *DayDocument) ReadingFor(variable string) int {
	for i := range d.Variables {
		if d.Variables[i].Variable == variable {
			return i
		}
	}
	return -1
}

// Clone returns a copy whose slices can be modified without touching d.
func (d *DayDocument) Clone() *DayDocument {
	c := *d
	c.Entries = append([]Entry(nil), d.Entries...)
	c.Variables = append([]Reading(nil), d.Variables...)
	return &c
}

// DayKey truncates a calendar day to midnight UTC.
func DayKey(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
