package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoEntities = errors.New("orchestrator: assignment mode needs at least one entity")
	ErrMode       = errors.New("orchestrator: unknown mode")
)

// BudgetExceededWarning lists items left out because they did not fit.
type BudgetExceededWarning struct {
	IDs  []string
	Room int
}

func (w *BudgetExceededWarning) Error() string {
	return fmt.Sprintf("budget exceeded: %d item(s) dropped (room %d): %s", len(w.IDs), w.Room, strings.Join(w.IDs, ", "))
}

// ChunkTransientError is a chunk that kept failing transiently until its
// retries or the run deadline ran out.
type ChunkTransientError struct {
	Chunk    int
	Attempts int
	Err      error
}

func (e *ChunkTransientError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempt(s): %v", e.Chunk, e.Attempts, e.Err)
}

func (e *ChunkTransientError) Unwrap() error { return e.Err }

// ServiceFatalError aborts a whole run.
type ServiceFatalError struct {
	Chunk int
	Err   error
}

func (e *ServiceFatalError) Error() string {
	return fmt.Sprintf("completion service unusable (chunk %d): %v", e.Chunk, e.Err)
}

func (e *ServiceFatalError) Unwrap() error { return e.Err }

// OperationCancelled is attached to a result cut short by the caller.
type OperationCancelled struct {
	Err error
}

func (e *OperationCancelled) Error() string {
	if e.Err == nil {
		return "operation cancelled"
	}
	return "operation cancelled: " + e.Err.Error()
}

func (e *OperationCancelled) Unwrap() error { return e.Err }

func isFatal(err error) bool {
	var fe *ServiceFatalError
	return errors.As(err, &fe)
}

func isCancelled(err error) bool {
	var oc *OperationCancelled
	return errors.As(err, &oc)
}
