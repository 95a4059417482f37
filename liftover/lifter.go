// Package liftover converts source-build coordinates to the target build in
// bounded-size batches, either via the UCSC liftOver binary or in-process
// from a chain file.
package liftover

import "fmt"

// Interval is one 1-based position to lift. ID correlates results back to
// the originating record, since the external tool drops and reorders
// unmapped intervals.
type Interval struct {
	ID         int
	Chromosome string
	Position   int64
}

// Lifted is a successfully converted coordinate, 1-based, with the
// chromosome in our normalized (un-prefixed) convention.
type Lifted struct {
	Chromosome string
	Position   int64
}

// A Lifter converts one batch of intervals. Intervals absent from the
// returned map are unmapped in the target build. An error means the whole
// batch failed; the caller marks its records unmapped and carries on.
type Lifter interface {
	Lift(batch []Interval) (map[int]Lifted, error)
}

// Identity short-circuits liftover when the source and target builds are the
// same: every interval maps to itself and nothing is ever unmapped.
type Identity struct{}

func (Identity) Lift(batch []Interval) (map[int]Lifted, error) {
	out := make(map[int]Lifted, len(batch))
	for _, iv := range batch {
		out[iv.ID] = Lifted{Chromosome: iv.Chromosome, Position: iv.Position}
	}

	return out, nil
}

// BatchError reports the failure of a single batch. It is recoverable: the
// batch's records are emitted as unmapped and the run continues.
type BatchError struct {
	Batch int
	Size  int
	Err   error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("liftover: batch %d (%d intervals): %v", e.Batch, e.Size, e.Err)
}

func (e BatchError) Unwrap() error {
	return e.Err
}
