package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists the files a run leaves behind, keyed by run id and a
// relative path.
type Store interface {
	Put(ctx context.Context, runID, path string, content []byte) error
	Get(ctx context.Context, runID, path string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
}

// Paths written for every finished run.
const (
	ResultPath      = "result.json"
	DiagnosticsPath = "diagnostics.json"
	MergedTextPath  = "merged.md"
	// ResponsesDir holds the raw completion of every call.
	ResponsesDir = "responses/"
)

var ErrNotFound = errors.New("artifact not found")

func objectKey(runID, path string) (string, error) {
	runID = strings.TrimSpace(runID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("invalid path %q", path)
	}
	return runID + "/" + path, nil
}

func runPrefix(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	return strings.TrimSuffix(runID, "/") + "/", nil
}
