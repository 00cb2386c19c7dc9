package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/storage"
)

const (
	defaultPaperLimit = 100
	maxPaperLimit     = 500
)

// ListPapers handles GET /api/papers?relevant={bool}&since={date}&q={text}&limit={n}.
// since is a YYYY-MM-DD date interpreted as midnight UTC.
func ListPapers(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f storage.PaperFilter
		if raw := q.Get("relevant"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "relevant must be true or false")
				return
			}
			f.Relevant = &v
		}
		if raw := q.Get("since"); raw != "" {
			since, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be a YYYY-MM-DD date")
				return
			}
			f.Since = since
		}
		f.Query = q.Get("q")

		limit, err := parseLimit(r, defaultPaperLimit, maxPaperLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Limit = limit

		papers, err := store.ListPapers(r.Context(), f)
		if err != nil {
			slog.Error("failed to list papers", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list papers")
			return
		}

		writeJSON(w, http.StatusOK, papers)
	}
}
