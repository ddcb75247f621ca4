package ideawatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shahar42/competotor-agent/kit"
)

const maxBodyBytes = 8 << 20

// Handler returns the HTTP API. Feedback and unsubscribe are GET so the
// links in digest emails work from any mail client.
func (svc *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := kit.WithTransport(req.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": svc.Sources()})
	})
	if svc.metrics != nil {
		r.Handle("/metrics", svc.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/ideas", svc.handleSubmit)
		r.Post("/ideas/{id}/rescan", svc.handleRescan)
		r.Post("/ideas/{id}/reextract", svc.handleReextract)
		r.Get("/ideas/{id}/runs", svc.handleRuns)
		r.Get("/results/{email}", svc.handleResults)
		r.Get("/feedback", svc.handleFeedback)
		r.Get("/unsubscribe", svc.handleUnsubscribe)
	})
	return r
}

func (svc *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	idea, err := svc.SubmitIdea(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"idea_id":    idea.ID,
		"monitoring": idea.Monitoring,
		"message":    "Idea received. Competitor results will be emailed to you.",
	})
}

func (svc *Service) handleRescan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	queued, err := svc.Rescan(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"idea_id": id, "queued": queued})
}

func (svc *Service) handleReextract(w http.ResponseWriter, r *http.Request) {
	c, err := svc.ReextractConcepts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (svc *Service) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := svc.Runs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []*ScanRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (svc *Service) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := svc.Results(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (svc *Service) handleFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	relevant, err := parseFlag(q.Get("is_relevant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := svc.RecordFeedback(r.Context(), q.Get("competitor_id"), relevant); err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "✓ Thanks for your feedback.")
}

func (svc *Service) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := svc.Unsubscribe(r.Context(), r.URL.Query().Get("email")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "You have been unsubscribed. Submit a new idea to opt back in.")
}

// parseFlag accepts 1/0 and the strconv boolean spellings.
func parseFlag(s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: is_relevant must be 1 or 0", ErrInvalidInput)
	}
	return b, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
