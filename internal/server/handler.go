package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"interviewforge/internal/orchestrator"
	"interviewforge/internal/store/artifact"
	"interviewforge/internal/store/run"
)

const maxRequestBytes = 32 << 20

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log.Named("http")}
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	res, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		h.log.Warn("generate failed", zap.String("run", req.RunID), zap.Error(err))
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	paths, err := h.svc.Artifacts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": r.PathValue("id"), "paths": paths})
}

func (h *Handler) HandleGetArtifact(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	data, err := h.svc.Artifact(r.Context(), r.PathValue("id"), path)
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	ct := "application/octet-stream"
	switch {
	case strings.HasSuffix(path, ".json"):
		ct = "application/json"
	case strings.HasSuffix(path, ".md"):
		ct = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(data)
}

func httpStatus(err error) int {
	var fatal *orchestrator.ServiceFatalError
	switch {
	case invalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunExists):
		return http.StatusConflict
	case errors.Is(err, run.ErrNotFound), errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &fatal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
