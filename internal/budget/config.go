package budget

import (
	"errors"
	"fmt"
	"time"
)

// Config is the explicit budget configuration of one Generate call.
// Every knob the engine honours lives here.
type Config struct {
	Capacity                  int           `json:"capacity" yaml:"capacity"`
	ReservedOverhead          int           `json:"reserved_overhead" yaml:"reserved_overhead"`
	PerCallCapacity           int           `json:"per_call_capacity" yaml:"per_call_capacity"`
	ChunkBatchSize            int           `json:"chunk_batch_size" yaml:"chunk_batch_size"`
	SequentialCeiling         int           `json:"sequential_ceiling" yaml:"sequential_ceiling"`
	RetryCount                int           `json:"retry_count" yaml:"retry_count"`
	RequireExhaustiveCoverage bool          `json:"require_exhaustive_coverage" yaml:"require_exhaustive_coverage"`
	CarriedSummaryCap         int           `json:"carried_summary_cap" yaml:"carried_summary_cap"`
	DigestSize                int           `json:"digest_size" yaml:"digest_size"`
	Refine                    bool          `json:"refine" yaml:"refine"`
	Concurrency               int           `json:"concurrency" yaml:"concurrency"`
	CallTimeout               time.Duration `json:"call_timeout" yaml:"call_timeout"`
	Deadline                  time.Duration `json:"deadline" yaml:"deadline"`
	RetryBaseDelay            time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// DefaultConfig returns conservative defaults sized for a mid-range model.
func DefaultConfig() Config {
	return Config{
		Capacity:          32000,
		ReservedOverhead:  1500,
		PerCallCapacity:   8000,
		ChunkBatchSize:    30,
		SequentialCeiling: 120000,
		RetryCount:        3,
		CarriedSummaryCap: 400,
		DigestSize:        60,
		Concurrency:       4,
		CallTimeout:       60 * time.Second,
		Deadline:          5 * time.Minute,
		RetryBaseDelay:    500 * time.Millisecond,
	}
}

// Normalized fills zero-valued optional fields. Capacity and
// ReservedOverhead are never defaulted.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.PerCallCapacity <= 0 {
		c.PerCallCapacity = c.Capacity
	}
	if c.ChunkBatchSize <= 0 {
		c.ChunkBatchSize = d.ChunkBatchSize
	}
	if c.SequentialCeiling <= 0 {
		c.SequentialCeiling = 4 * c.Capacity
	}
	if c.DigestSize <= 0 {
		c.DigestSize = d.DigestSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.Deadline <= 0 {
		c.Deadline = d.Deadline
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.CarriedSummaryCap < 0 {
		c.CarriedSummaryCap = 0
	}
	return c
}

var ErrInvalid = errors.New("budget: invalid config")

// Validate reports the first inconsistency in c. Call it on a
// normalized config.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", ErrInvalid)
	case c.ReservedOverhead < 0:
		return fmt.Errorf("%w: reserved_overhead must not be negative", ErrInvalid)
	case c.ReservedOverhead >= c.Capacity:
		return fmt.Errorf("%w: reserved_overhead %d leaves no room in capacity %d", ErrInvalid, c.ReservedOverhead, c.Capacity)
	case c.PerCallCapacity > c.Capacity:
		return fmt.Errorf("%w: per_call_capacity %d exceeds capacity %d", ErrInvalid, c.PerCallCapacity, c.Capacity)
	case c.PerCallCapacity-c.ReservedOverhead-c.CarriedSummaryCap <= 0:
		return fmt.Errorf("%w: per_call_capacity %d leaves no chunk room after overhead and carried summary", ErrInvalid, c.PerCallCapacity)
	case c.ChunkBatchSize <= 0:
		return fmt.Errorf("%w: chunk_batch_size must be positive", ErrInvalid)
	case c.SequentialCeiling < c.Capacity-c.ReservedOverhead:
		return fmt.Errorf("%w: sequential_ceiling %d below single-pass room", ErrInvalid, c.SequentialCeiling)
	case c.DigestSize <= 0:
		return fmt.Errorf("%w: digest_size must be positive", ErrInvalid)
	}
	return nil
}

// Budget derives the per-request capacity figures.
func (c Config) Budget() Budget {
	return Budget{
		Capacity:         c.Capacity,
		ReservedOverhead: c.ReservedOverhead,
		PerCallCapacity:  c.PerCallCapacity,
	}
}

// Budget is the capacity constraint of one request.
type Budget struct {
	Capacity         int `json:"capacity"`
	ReservedOverhead int `json:"reserved_overhead"`
	PerCallCapacity  int `json:"per_call_capacity"`
}

// SinglePassRoom is the content room of one call holding everything.
func (b Budget) SinglePassRoom() int {
	return max(b.Capacity-b.ReservedOverhead, 0)
}

// PerCallRoom is the content room of one chunk call after overhead and
// the space kept for a carried summary.
func (b Budget) PerCallRoom(carry int) int {
	return max(b.PerCallCapacity-b.ReservedOverhead-carry, 0)
}
