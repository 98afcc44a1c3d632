package server

import (
	"net/http"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"interviewforge/internal/server/middleware"
)

func NewMux(h *Handler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(GenerateProcedure, connect.NewUnaryHandler(GenerateProcedure, h.GenerateRPC))

	mux.HandleFunc("POST /v1/generate", h.HandleGenerate)
	mux.HandleFunc("GET /v1/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /v1/runs/{id}/events", h.HandleRunEvents)
	mux.HandleFunc("GET /v1/runs/{id}/artifacts", h.HandleListArtifacts)
	mux.HandleFunc("GET /v1/runs/{id}/artifacts/{path...}", h.HandleGetArtifact)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return middleware.Logging(log, middleware.CORS(mux))
}
