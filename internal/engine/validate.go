package engine

import (
	"strings"
	"unicode/utf8"
)

// Field length limits, counted in characters after trimming.
const (
	maxActivityChars    = 100
	maxDescriptionChars = 500
	maxVariableChars    = 100
	maxValueChars       = 100
	maxNoteChars        = 1000
)

// requireText trims s and checks it holds 1..max characters.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", validationf("%s is required", field)
	}
	if n := utf8.RuneCountInString(s); n > max {
		return "", validationf("%s must be at most %d characters (got %d)", field, max, n)
	}
	return s, nil
}

// validActivity normalizes the fields shared by activity create and edit
// and completes the start/end pair.
func validActivity(m ActivityMutation) (ActivityMutation, error) {
	var err error
	if m.Activity, err = requireText("activity", m.Activity, maxActivityChars); err != nil {
		return m, err
	}
	if m.Description, err = requireText("description", m.Description, maxDescriptionChars); err != nil {
		return m, err
	}
	if m.Start, m.End, err = DeriveTimes(m.Start, m.End, m.Description); err != nil {
		return m, err
	}
	return m, nil
}

func validVariableName(name string) (string, error) {
	return requireText("variable", name, maxVariableChars)
}

func validVariableValue(value string) (string, error) {
	return requireText("value", value, maxValueChars)
}

func validNote(note string) (string, error) {
	return requireText("note", note, maxNoteChars)
}

// normalize checks the fields req's operation needs and returns req with them
// trimmed and, for activities, the start/end pair completed. It runs before
// anything is written.
func normalize(req MutationRequest) (MutationRequest, error) {
	switch m := req.(type) {
	case ActivityMutation:
		return normalizeActivity(m)
	case VariableMutation:
		return normalizeVariable(m)
	case NoteMutation:
		return normalizeNote(m)
	}
	return nil, validationf("unsupported mutation %T", req)
}

func normalizeActivity(m ActivityMutation) (MutationRequest, error) {
	switch m.Op {
	case OpCreate:
		return validActivity(m)
	case OpEdit, OpDelete:
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, validationf("id is required")
		}
		if m.Op == OpDelete {
			return m, nil
		}
		return validActivity(m)
	}
	return nil, validationf("unknown operation %q", m.Op)
}

func normalizeVariable(m VariableMutation) (MutationRequest, error) {
	var err error
	if m.Variable, err = validVariableName(m.Variable); err != nil {
		return nil, err
	}
	switch m.Op {
	case OpCreate, OpEdit:
		if m.Value, err = validVariableValue(m.Value); err != nil {
			return nil, err
		}
		return m, nil
	case OpDelete:
		return m, nil
	}
	return nil, validationf("unknown operation %q", m.Op)
}

func normalizeNote(m NoteMutation) (MutationRequest, error) {
	switch m.Op {
	case OpCreate, OpEdit:
		var err error
		if m.Note, err = validNote(m.Note); err != nil {
			return nil, err
		}
		return m, nil
	case OpDelete:
		return m, nil
	}
	return nil, validationf("unknown operation %q", m.Op)
}
