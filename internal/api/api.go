// Package api serves read-only JSON views of reports and accepted cases.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/model"
	"github.com/sells-group/sitrep-cli/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	store  store.Store
	logger *zap.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(st store.Store, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.L()
	}
	s := &Server{store: st, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/reports", s.listReports)
	r.Get("/reports/{id}", s.getReport)
	r.Get("/cases", s.listCases)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseStatus accepts the stored flag or its name.
func parseStatus(v string) (model.ProcessStatus, bool) {
	switch v {
	case "N", "pending":
		return model.ProcessPending, true
	case "Y", "done", "processed":
		return model.ProcessDone, true
	case "R", "review":
		return model.ProcessReview, true
	}
	return "", false
}

func queryInt(r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil && n >= 0
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ReportFilter{Year: q.Get("year")}
	if v := q.Get("status"); v != "" {
		st, ok := parseStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Processed = model.Status(st)
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	filter.Limit = limit

	reports, err := s.store.ListReports(r.Context(), filter)
	if err != nil {
		s.logger.Error("api: list reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list reports failed")
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	report, err := s.store.GetReport(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Error("api: get report", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get report failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	week, ok := queryInt(r, "week")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid week")
		return
	}
	if year > 0 && year < 100 {
		year += 2000
	}

	cases, err := s.store.ListCases(r.Context(), model.CaseFilter{Year: year, Week: week})
	if err != nil {
		s.logger.Error("api: list cases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list cases failed")
		return
	}
	if cases == nil {
		cases = []model.CaseRecord{}
	}
	writeJSON(w, http.StatusOK, cases)
}
