package llm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewforge/internal/prompt"
)

func TestUsageLedgerDaily_AggregatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage", "llm_usage_daily.json")
	base := &fastClient{}
	cli := Wrap(base, WithUsageLedger(path))

	env := prompt.Envelope{Instructions: "Assign items.", Content: "[q1] (item-list) who approves"}
	_, err := cli.Send(context.Background(), env)
	require.NoError(t, err)
	base.err = assert.AnError
	_, err = cli.Send(context.Background(), env)
	require.Error(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var f usageLedgerFile
	require.NoError(t, json.Unmarshal(b, &f))

	day := f.Days[time.Now().UTC().Format("2006-01-02")]
	assert.Equal(t, int64(2), day.Requests)
	assert.Equal(t, int64(1), day.Errors)
	assert.Greater(t, day.Units, int64(0))
	assert.Equal(t, int64(2), day.Clients["fast"].Requests)
}

func TestUsageLedger_EmptyPathIsPassThrough(t *testing.T) {
	base := &fastClient{}
	assert.Same(t, base, WithUsageLedger("")(base))
}

func TestUsageLedger_DayReadsTotals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	cli := Wrap(&fastClient{}, WithUsageLedger(path))
	_, err := cli.Send(context.Background(), prompt.Envelope{Instructions: "x", Content: "y"})
	require.NoError(t, err)

	requests, units, errs := NewUsageLedger(path).Day(time.Now().UTC().Format("2006-01-02"))
	assert.Equal(t, int64(1), requests)
	assert.Greater(t, units, int64(0))
	assert.Zero(t, errs)

	requests, _, _ = NewUsageLedger(path).Day("1999-01-01")
	assert.Zero(t, requests)
}
