package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/lazypower/daybook/internal/auth"
	"github.com/lazypower/daybook/internal/engine"
	"github.com/lazypower/daybook/internal/model"
)

const (
	internalMessage = "internal server error"
	maxBodyBytes    = 64 << 10
	dateLayout      = "2006-01-02"
)

// mutationBody is the flat JSON body shared by the three mutation routes.
// Type selects the facet; the remaining fields are read according to it.
type mutationBody struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	Day         int             `json:"day"`
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	Activity    string          `json:"activity"`
	Description string          `json:"description"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	Location    *model.Location `json:"location"`
	Variable    string          `json:"variable"`
	Value       string          `json:"value"`
	Note        string          `json:"note"`
}

// request converts the body into the facet mutation it names.
func (b mutationBody) request(op engine.Op) (engine.MutationRequest, error) {
	day := engine.Day{Year: b.Year, Month: b.Month, Day: b.Day}
	switch model.Facet(b.Type) {
	case model.FacetActivity:
		return engine.ActivityMutation{
			Op:          op,
			Day:         day,
			ID:          b.ID,
			Activity:    b.Activity,
			Description: b.Description,
			Start:       b.Start,
			End:         b.End,
			Location:    b.Location,
		}, nil
	case model.FacetVariable:
		return engine.VariableMutation{Op: op, Day: day, Variable: b.Variable, Value: b.Value}, nil
	case model.FacetNote:
		return engine.NoteMutation{Op: op, Day: day, Note: b.Note}, nil
	case "":
		return nil, errors.New("type is required")
	}
	return nil, fmt.Errorf("unknown type %q", b.Type)
}

// mutationResponse is the success envelope of the mutation routes.
type mutationResponse struct {
	Message string             `json:"message"`
	Outcome engine.Outcome     `json:"outcome"`
	ID      string             `json:"id,omitempty"`
	Day     *model.DayDocument `json:"day,omitempty"`
}

func (s *Server) handleMutation(op engine.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromContext(r.Context())

		var body mutationBody
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid json")
			return
		}
		req, err := body.request(op)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", err.Error())
			return
		}

		res, err := s.engine.Apply(r.Context(), userID, req)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{
			Message: res.Message,
			Outcome: res.Outcome,
			ID:      res.EntryID,
			Day:     res.Day,
		})
	}
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	var day engine.Day
	for _, f := range []struct {
		name string
		dst  *int
	}{{"year", &day.Year}, {"month", &day.Month}, {"day", &day.Day}} {
		n, err := strconv.Atoi(q.Get(f.name))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", f.name+" must be an integer")
			return
		}
		*f.dst = n
	}

	doc, err := s.engine.Day(r.Context(), userID, day)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	from, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "from must be a YYYY-MM-DD date")
		return
	}
	to, err := time.Parse(dateLayout, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "to must be a YYYY-MM-DD date")
		return
	}

	days, err := s.engine.Range(r.Context(), userID, engine.DayOf(from), engine.DayOf(to))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	u, err := s.engine.User(r.Context(), userID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// writeEngineError maps an engine error onto the error envelope. Internal
// failures are logged and answered with a generic message.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := engine.KindOf(err)
	var e *engine.Error
	msg := internalMessage
	if kind != engine.KindInternal && errors.As(err, &e) {
		msg = e.Message
	}

	switch kind {
	case engine.KindValidation, engine.KindConflict:
		writeError(w, http.StatusBadRequest, kind.String(), msg)
	case engine.KindNotFound:
		writeError(w, http.StatusNotFound, kind.String(), msg)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, kind.String(), msg)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"message": msg, "code": code})
}
