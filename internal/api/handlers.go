package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sweeprun/internal/store"
)

type sweepResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Program    string   `json:"program"`
	WorkDir    string   `json:"work_dir,omitempty"`
	Datasets   []string `json:"datasets"`
	Models     []string `json:"models"`
	ReportPath string   `json:"report_path,omitempty"`
	CreatedAt  string   `json:"created_at"`
	FinishedAt *string  `json:"finished_at,omitempty"`
}

type outcomeResponse struct {
	Seq       int    `json:"seq"`
	Dataset   string `json:"dataset"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	ExitCode  int    `json:"exit_code"`
	Seconds   int    `json:"duration_seconds"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
}

func (s *Server) handleListSweeps(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	sweeps, err := s.store.ListSweeps(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list sweeps", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sweeps")
		return
	}
	resp := make([]sweepResponse, 0, len(sweeps))
	for _, sweep := range sweeps {
		resp = append(resp, sweepToResponse(sweep))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sweeps": resp})
}

func (s *Server) handleGetSweep(w http.ResponseWriter, r *http.Request) {
	sweepID := chi.URLParam(r, "sweepID")
	sweep, err := s.store.GetSweep(r.Context(), sweepID)
	if err != nil {
		if errors.Is(err, store.ErrSweepNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "sweep not found")
		} else {
			s.logger.Error("get sweep", "sweep_id", sweepID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load sweep")
		}
		return
	}
	writeJSON(w, http.StatusOK, sweepToResponse(sweep))
}

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	sweepID := chi.URLParam(r, "sweepID")
	if _, err := s.store.GetSweep(r.Context(), sweepID); err != nil {
		if errors.Is(err, store.ErrSweepNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "sweep not found")
		} else {
			s.logger.Error("get sweep for outcomes", "sweep_id", sweepID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load sweep")
		}
		return
	}
	outcomes, err := s.store.ListOutcomes(r.Context(), sweepID)
	if err != nil {
		s.logger.Error("list outcomes", "sweep_id", sweepID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list outcomes")
		return
	}
	resp := make([]outcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, outcomeResponse{
			Seq:       o.Seq,
			Dataset:   o.Dataset,
			Model:     o.Model,
			Status:    string(o.Status),
			ExitCode:  o.ExitCode,
			Seconds:   o.Seconds,
			StartedAt: o.StartedAt.Format(time.RFC3339),
			EndedAt:   o.EndedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": resp})
}

func (s *Server) handleSweepReport(w http.ResponseWriter, r *http.Request) {
	sweepID := chi.URLParam(r, "sweepID")
	sweep, err := s.store.GetSweep(r.Context(), sweepID)
	if err != nil {
		if errors.Is(err, store.ErrSweepNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "sweep not found")
		} else {
			s.logger.Error("get sweep for report", "sweep_id", sweepID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load sweep")
		}
		return
	}
	if sweep.ReportPath == "" {
		writeError(w, http.StatusNotFound, "not_found", "no report recorded for sweep")
		return
	}
	data, err := os.ReadFile(sweep.ReportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "report file not found")
		} else {
			s.logger.Error("read report", "sweep_id", sweepID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read report")
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func sweepToResponse(sweep *store.SweepRow) sweepResponse {
	resp := sweepResponse{
		ID:         sweep.ID,
		Name:       sweep.Name,
		Program:    sweep.Program,
		WorkDir:    sweep.WorkDir,
		Datasets:   sweep.Datasets,
		Models:     sweep.Models,
		ReportPath: sweep.ReportPath,
		CreatedAt:  sweep.CreatedAt.Format(time.RFC3339),
	}
	if sweep.FinishedAt != nil {
		finished := sweep.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &finished
	}
	return resp
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
