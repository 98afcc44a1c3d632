package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"interviewforge/internal/budget"
	"interviewforge/internal/catalog"
	"interviewforge/internal/llm"
	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/merge"
	"interviewforge/internal/orchestrator"
	"interviewforge/internal/prompt"
	"interviewforge/internal/store/artifact"
	"interviewforge/internal/store/run"
)

func writePart(env prompt.Envelope) (string, error) {
	b, _ := json.Marshal(map[string]string{
		"text":    fmt.Sprintf("part %d", env.ChunkIndex),
		"summary": fmt.Sprintf("summary %d", env.ChunkIndex),
	})
	return string(b), nil
}

func testBudget() budget.Config {
	return budget.Config{
		Capacity:          200,
		ReservedOverhead:  20,
		PerCallCapacity:   120,
		CarriedSummaryCap: 20,
		ChunkBatchSize:    10,
		SequentialCeiling: 1000,
		RetryCount:        1,
		RetryBaseDelay:    time.Millisecond,
		CallTimeout:       time.Second,
		Deadline:          10 * time.Second,
		Concurrency:       2,
	}
}

func briefItems() []catalog.Item {
	items := make([]catalog.Item, 0, 3)
	for i := 1; i <= 3; i++ {
		items = append(items, catalog.Item{
			ID:       fmt.Sprintf("i%d", i),
			Category: catalog.CategoryQAPair,
			Tier:     2,
			Text:     fmt.Sprintf("Q: topic %d?\nA: answer %d", i, i),
			Size:     10,
		})
	}
	return items
}

var briefMode = orchestrator.Mode{Kind: merge.KindText, Task: "Write the project brief."}

type fixture struct {
	srv       *httptest.Server
	client    *llmclient.ScriptedClient
	runs      *run.MemoryStore
	artifacts *artifact.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := llmclient.NewScriptedClient()
	client.Fallback = writePart
	hub := NewHub()
	engine := orchestrator.New(llm.Wrap(client, llm.WithHooks()), orchestrator.WithObserver(hub))
	runs := run.NewMemoryStore()
	arts := artifact.NewMemoryStore()
	svc := NewService(engine, runs, arts, hub, WithDefaults(testBudget()))
	srv := httptest.NewServer(NewMux(NewHandler(svc, nil), nil))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, client: client, runs: runs, artifacts: arts}
}

func (f *fixture) post(t *testing.T, req GenerateRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+"/v1/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestGenerate_PersistsRunAndArtifacts(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, GenerateRequest{RunID: "r1", Items: briefItems(), Mode: briefMode})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		RunID    string   `json:"run_id"`
		Strategy string   `json:"strategy"`
		UsedIDs  []string `json:"used_ids"`
		Merged   struct {
			Text string `json:"text"`
		} `json:"merged"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "r1", out.RunID)
	assert.Equal(t, string(budget.SinglePass), out.Strategy)
	assert.Equal(t, []string{"i1", "i2", "i3"}, out.UsedIDs)
	assert.Contains(t, out.Merged.Text, "part 1")

	status, body := f.get(t, "/v1/runs/r1")
	require.Equal(t, http.StatusOK, status)
	var rec run.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, run.StatusDone, rec.Status)
	assert.Equal(t, "single-pass", rec.Strategy)
	assert.Equal(t, 3, rec.Items)
	assert.Contains(t, string(rec.Result), `"run_id":"r1"`)

	status, body = f.get(t, "/v1/runs/r1/artifacts")
	require.Equal(t, http.StatusOK, status)
	var listing struct {
		Paths []string `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Paths, 4)
	assert.Equal(t, []string{"diagnostics.json", "merged.md"}, listing.Paths[:2])
	assert.Equal(t, "result.json", listing.Paths[3])
	raw := listing.Paths[2]
	assert.True(t, strings.HasPrefix(raw, artifact.ResponsesDir+"001-"), raw)
	assert.True(t, strings.HasSuffix(raw, "-1.txt"), raw)

	status, body = f.get(t, "/v1/runs/r1/artifacts/"+raw)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"text":"part 1"`)

	status, body = f.get(t, "/v1/runs/r1/artifacts/merged.md")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, out.Merged.Text, string(body))
}

func TestGenerate_RequestErrors(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, GenerateRequest{Items: briefItems(), Mode: orchestrator.Mode{Kind: "poem"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, GenerateRequest{Items: briefItems(), Mode: briefMode, Budget: json.RawMessage(`{"capacity":-1}`)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	dup := append(briefItems(), briefItems()[0])
	resp = f.post(t, GenerateRequest{Items: dup, Mode: briefMode})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, http.StatusOK, f.post(t, GenerateRequest{RunID: "once", Items: briefItems(), Mode: briefMode}).StatusCode)
	assert.Equal(t, http.StatusConflict, f.post(t, GenerateRequest{RunID: "once", Items: briefItems(), Mode: briefMode}).StatusCode)

	status, _ := f.get(t, "/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, status)

	r, err := http.Post(f.srv.URL+"/v1/generate", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestGenerate_FatalServiceErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.client.Fallback = func(prompt.Envelope) (string, error) {
		return "", llmclient.NewFatal(llmclient.AuthFailure, errors.New("bad key"))
	}

	resp := f.post(t, GenerateRequest{RunID: "r-fatal", Items: briefItems(), Mode: briefMode})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	rec, err := f.runs.Get(context.Background(), "r-fatal")
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "bad key")

	paths, err := f.artifacts.List(context.Background(), "r-fatal")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestGenerateRPC(t *testing.T) {
	f := newFixture(t)

	payload, err := json.Marshal(GenerateRequest{RunID: "rpc-1", Items: briefItems(), Mode: briefMode})
	require.NoError(t, err)
	var asMap map[string]any
	require.NoError(t, json.Unmarshal(payload, &asMap))
	msg, err := structpb.NewStruct(asMap)
	require.NoError(t, err)

	client := connect.NewClient[structpb.Struct, structpb.Struct](http.DefaultClient, f.srv.URL+GenerateProcedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	require.NoError(t, err)
	assert.Equal(t, "rpc-1", resp.Msg.GetFields()["run_id"].GetStringValue())
	assert.Equal(t, "single-pass", resp.Msg.GetFields()["strategy"].GetStringValue())

	bad, err := structpb.NewStruct(map[string]any{"mode": map[string]any{"kind": "poem"}, "items": []any{}})
	require.NoError(t, err)
	_, err = client.CallUnary(context.Background(), connect.NewRequest(bad))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRunEvents_StreamsDiagnosticsThenCompletes(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/runs/r-ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, http.StatusOK, f.post(t, GenerateRequest{RunID: "r-ws", Items: briefItems(), Mode: briefMode}).StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got []Event
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		got = append(got, ev)
		if ev.Type == EventComplete {
			break
		}
	}
	require.GreaterOrEqual(t, len(got), 2)
	for i, ev := range got {
		assert.Equal(t, "r-ws", ev.RunID)
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, EventDiagnostic, got[0].Type)
	require.NotNil(t, got[0].Diagnostic)
	assert.Equal(t, orchestrator.OutcomeMerged, got[0].Diagnostic.Outcome)
	assert.Equal(t, string(run.StatusDone), got[len(got)-1].Status)
}

func TestHub_ReplayAndClose(t *testing.T) {
	h := NewHub()
	h.Observe("r1", orchestrator.Diagnostic{Chunk: 1, Outcome: orchestrator.OutcomeMerged})

	backlog, events, cancel := h.Subscribe("r1")
	defer cancel()
	require.Len(t, backlog, 1)
	assert.Equal(t, 1, backlog[0].Seq)

	h.Observe("r1", orchestrator.Diagnostic{Chunk: 2, Outcome: orchestrator.OutcomeFailed})
	h.Finish("r1", "done")
	h.Observe("r1", orchestrator.Diagnostic{Chunk: 3})

	var live []Event
	for ev := range events {
		live = append(live, ev)
	}
	require.Len(t, live, 2)
	assert.Equal(t, 2, live[0].Diagnostic.Chunk)
	assert.Equal(t, EventComplete, live[1].Type)
	assert.Equal(t, 3, live[1].Seq)

	backlog, events, _ = h.Subscribe("r1")
	assert.Len(t, backlog, 3)
	_, open := <-events
	assert.False(t, open)
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := NewHub()
	_, events, cancel := h.Subscribe("r1")
	defer cancel()
	for i := 0; i <= subscriberBuffer; i++ {
		h.Observe("r1", orchestrator.Diagnostic{Chunk: i + 1})
	}
	n := 0
	for range events {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}

func TestHub_CancelForgetsUnstartedRun(t *testing.T) {
	h := NewHub()
	_, _, cancel := h.Subscribe("never")
	cancel()
	cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.NotContains(t, h.runs, "never")
}
