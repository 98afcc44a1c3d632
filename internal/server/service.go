package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interviewforge/internal/budget"
	"interviewforge/internal/catalog"
	"interviewforge/internal/llm"
	"interviewforge/internal/merge"
	"interviewforge/internal/orchestrator"
	"interviewforge/internal/prompt"
	"interviewforge/internal/store/artifact"
	"interviewforge/internal/store/run"
	"interviewforge/internal/util/jsonutil"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrRunExists  = errors.New("run already exists")
)

// Generator is satisfied by *orchestrator.Engine.
type Generator interface {
	Generate(ctx context.Context, items []catalog.Item, cfg budget.Config, mode orchestrator.Mode) (*orchestrator.Result, error)
}

// GenerateRequest is the JSON payload of POST /v1/generate and of the
// Connect Generate procedure. Budget fields override the server defaults
// one by one.
type GenerateRequest struct {
	RunID  string            `json:"run_id,omitempty"`
	Items  []catalog.Item    `json:"items"`
	Mode   orchestrator.Mode `json:"mode"`
	Budget json.RawMessage   `json:"budget,omitempty"`
}

type Service struct {
	engine    Generator
	runs      run.Store
	artifacts artifact.Store
	hub       *Hub
	defaults  budget.Config
	hook      llm.CallHook
	log       *zap.Logger
}

type ServiceOption func(*Service)

func WithDefaults(cfg budget.Config) ServiceOption { return func(s *Service) { s.defaults = cfg } }

// WithCallHook observes every completion call of every run. It only
// fires when the engine's client carries the llm.WithHooks middleware.
func WithCallHook(h llm.CallHook) ServiceOption { return func(s *Service) { s.hook = h } }

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires the engine to persistence. hub must be the engine's
// observer for the event stream to carry diagnostics.
func NewService(engine Generator, runs run.Store, artifacts artifact.Store, hub *Hub, opts ...ServiceOption) *Service {
	s := &Service{
		engine:    engine,
		runs:      runs,
		artifacts: artifacts,
		hub:       hub,
		defaults:  budget.DefaultConfig(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	s.log = s.log.Named("server")
	return s
}

func (s *Service) Hub() *Hub { return s.hub }

func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*orchestrator.Result, error) {
	cfg := s.defaults
	if len(req.Budget) > 0 {
		if err := json.Unmarshal(req.Budget, &cfg); err != nil {
			return nil, fmt.Errorf("%w: budget: %v", ErrBadRequest, err)
		}
	}
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	} else if _, err := s.runs.Get(ctx, runID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	ctx = llm.WithRun(ctx, runID)
	responses := &responseLog{next: s.hook}
	ctx = llm.WithHook(ctx, responses)
	persistCtx := context.WithoutCancel(ctx)

	rec := run.Record{ID: runID, Mode: string(req.Mode.Kind), Status: run.StatusRunning, Items: len(req.Items)}
	s.putRecord(persistCtx, rec)

	res, err := s.engine.Generate(ctx, req.Items, cfg, req.Mode)
	if err != nil {
		rec.Status = run.StatusFailed
		rec.Error = err.Error()
		s.putRecord(persistCtx, rec)
		s.hub.Finish(runID, string(rec.Status))
		return nil, err
	}

	rec.Status = run.StatusDone
	if res.Cancelled {
		rec.Status = run.StatusCancelled
	}
	rec.Strategy = string(res.Strategy)
	if raw, err := json.Marshal(res); err != nil {
		s.log.Error("marshal result", zap.String("run", runID), zap.Error(err))
	} else {
		rec.Result = raw
		s.saveArtifacts(persistCtx, runID, res, raw, responses.files())
	}
	s.putRecord(persistCtx, rec)
	s.hub.Finish(runID, string(rec.Status))
	return res, nil
}

func (s *Service) Run(ctx context.Context, id string) (run.Record, error) {
	return s.runs.Get(ctx, id)
}

func (s *Service) Artifacts(ctx context.Context, id string) ([]string, error) {
	if _, err := s.runs.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.artifacts.List(ctx, id)
}

func (s *Service) Artifact(ctx context.Context, id, path string) ([]byte, error) {
	return s.artifacts.Get(ctx, id, path)
}

func (s *Service) putRecord(ctx context.Context, rec run.Record) {
	if err := s.runs.Put(ctx, rec); err != nil {
		s.log.Error("persist run", zap.String("run", rec.ID), zap.String("status", string(rec.Status)), zap.Error(err))
	}
}

func (s *Service) saveArtifacts(ctx context.Context, runID string, res *orchestrator.Result, raw []byte, files map[string][]byte) {
	files[artifact.ResultPath] = raw
	if diag, err := jsonutil.MarshalNoEscapeIndent(res.Diagnostics, "", "  "); err == nil {
		files[artifact.DiagnosticsPath] = diag
	}
	if res.Merged.Kind == merge.KindText && res.Merged.Text != "" {
		files[artifact.MergedTextPath] = []byte(res.Merged.Text)
	}
	for path, content := range files {
		if err := s.artifacts.Put(ctx, runID, path, content); err != nil {
			s.log.Error("persist artifact", zap.String("run", runID), zap.String("path", path), zap.Error(err))
		}
	}
}

// responseLog keeps every raw completion of one run, in arrival order,
// so they can be stored next to the merged result.
type responseLog struct {
	next llm.CallHook

	mu  sync.Mutex
	raw []string
	env []prompt.Envelope
}

func (l *responseLog) Before(ctx context.Context, env prompt.Envelope) {
	if l.next != nil {
		l.next.Before(ctx, env)
	}
}

func (l *responseLog) After(ctx context.Context, env prompt.Envelope, raw string, err error) {
	if l.next != nil {
		l.next.After(ctx, env, raw, err)
	}
	if err != nil || raw == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.raw = append(l.raw, raw)
	l.env = append(l.env, env)
}

func (l *responseLog) files() map[string][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]byte, len(l.raw)+3)
	for i, raw := range l.raw {
		path := fmt.Sprintf("%s%03d-%s-%d.txt", artifact.ResponsesDir, i+1, l.env[i].Stage, l.env[i].ChunkIndex)
		out[path] = []byte(raw)
	}
	return out
}

// invalidInput reports errors caused by the request rather than the
// server or the completion service.
func invalidInput(err error) bool {
	for _, target := range []error{
		ErrBadRequest,
		budget.ErrInvalid,
		orchestrator.ErrNoEntities,
		orchestrator.ErrMode,
		catalog.ErrEmptyID,
		catalog.ErrDuplicateID,
		catalog.ErrCategory,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
