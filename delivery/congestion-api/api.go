package congestionapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/desain-gratis/congestion/delivery/helper"
	repository "github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/usecase/congestion"
)

var (
	ErrJournalDisabled = errors.New("alert journal disabled")
)

type service struct {
	reader  congestion.Reader
	journal repository.AlertJournal
}

// New serves request/response queries over the congestion state.
// journal may be nil, the alert history is then unavailable.
func New(reader congestion.Reader, journal repository.AlertJournal) *service {
	return &service{
		reader:  reader,
		journal: journal,
	}
}

// Snapshot returns the current level of every known area
func (s *service) Snapshot(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	helper.SetSuccess(w, s.reader.CurrentSnapshot())
}

// Alerts returns the most recent journaled alerts, newest first
func (s *service) Alerts(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if s.journal == nil {
		helper.HandleError(w, "NOT_FOUND", ErrJournalDisabled.Error(), http.StatusNotFound, nil)
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		var err error
		limit, err = strconv.Atoi(q)
		if err != nil || limit < 0 {
			helper.HandleError(w, "BAD_REQUEST", "limit must be a positive number", http.StatusBadRequest, nil)
			return
		}
	}

	records, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		helper.HandleError(w, "SERVER_ERROR", "failed to read alert journal", http.StatusInternalServerError, err)
		return
	}

	if records == nil {
		records = []repository.AlertRecord{}
	}

	helper.SetSuccess(w, records)
}
