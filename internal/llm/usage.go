package llm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"interviewforge/internal/catalog"
	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/prompt"
)

// UsageLedger keeps daily call statistics per client in a JSON file.
type UsageLedger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

type usageLedgerFile struct {
	UpdatedAt string              `json:"updated_at"`
	Days      map[string]usageDay `json:"days"`
}

type usageDay struct {
	Requests int64                `json:"requests"`
	Units    int64                `json:"units"`
	Errors   int64                `json:"errors"`
	Clients  map[string]usageStat `json:"clients"`
}

type usageStat struct {
	Requests int64 `json:"requests"`
	Units    int64 `json:"units"`
	Errors   int64 `json:"errors"`
}

func NewUsageLedger(path string) *UsageLedger {
	return &UsageLedger{path: path, now: time.Now}
}

// WithUsageLedger records every call's estimated request size. An empty
// path disables it.
func WithUsageLedger(path string) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if path == "" {
			return next
		}
		return &usageLedgerClient{next: next, ledger: NewUsageLedger(path)}
	}
}

type usageLedgerClient struct {
	next   llmclient.Client
	ledger *UsageLedger
}

func (u *usageLedgerClient) Name() string { return u.next.Name() }
func (u *usageLedgerClient) Close() error { return u.next.Close() }
func (u *usageLedgerClient) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	units := max(catalog.EstimateSize(env.Render()), 1)
	out, err := u.next.Send(ctx, env)
	u.ledger.record(u.next.Name(), int64(units), err != nil)
	return out, err
}

// Day returns the totals recorded for the given UTC day (YYYY-MM-DD).
func (l *UsageLedger) Day(day string) (requests, units, errors int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.load()
	d := f.Days[day]
	return d.Requests, d.Units, d.Errors
}

func (l *UsageLedger) load() usageLedgerFile {
	f := usageLedgerFile{Days: map[string]usageDay{}}
	if b, err := os.ReadFile(l.path); err == nil {
		_ = json.Unmarshal(b, &f)
		if f.Days == nil {
			f.Days = map[string]usageDay{}
		}
	}
	return f
}

func (l *UsageLedger) record(client string, units int64, failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	f := l.load()
	key := now.Format("2006-01-02")
	d := f.Days[key]
	if d.Clients == nil {
		d.Clients = map[string]usageStat{}
	}
	s := d.Clients[client]
	d.Requests++
	s.Requests++
	d.Units += units
	s.Units += units
	if failed {
		d.Errors++
		s.Errors++
	}
	d.Clients[client] = s
	f.Days[key] = d
	f.UpdatedAt = now.Format(time.RFC3339)

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, l.path)
}
