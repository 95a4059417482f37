package harmonize

import (
	"log"
	"math"

	"github.com/montanaflynn/stats"
	"gopkg.in/guregu/null.v3"
)

// Summary aggregates the per-record and per-stage outcomes of one run. Every
// absence in the output (an NA rsID, an unmapped coordinate) is attributable
// to one of these counts; nothing degrades silently.
type Summary struct {
	Trait string

	RawRows     int
	ParsedRows  int
	ParseErrors int

	Resolved         int
	UnmappedLiftover int
	AlleleMismatch   int
	NovelVariant     int
	AmbiguousMatch   int

	LiftoverBatchErrors int
	LookupBatchErrors   int
	DbSNPSkippedLines   int

	// Descriptive aggregates over the written records, for a quick sanity
	// read of the run.
	MedianAbsEffect null.Float
	MeanResolvedAF  null.Float
}

// Count tallies one written record's status.
func (s *Summary) Count(st Status) {
	switch st {
	case StatusResolved:
		s.Resolved++
	case StatusUnmappedLiftover:
		s.UnmappedLiftover++
	case StatusAlleleMismatch:
		s.AlleleMismatch++
	case StatusNovelVariant:
		s.NovelVariant++
	case StatusAmbiguousMatch:
		s.AmbiguousMatch++
	}
}

// Written is the number of records emitted to the output, which must equal
// ParsedRows when the run completes.
func (s Summary) Written() int {
	return s.Resolved + s.UnmappedLiftover + s.AlleleMismatch + s.NovelVariant + s.AmbiguousMatch
}

// Finalize computes the descriptive aggregates from the written records.
func (s *Summary) Finalize(recs []Record) {
	absEffects := make([]float64, 0, len(recs))
	resolvedAFs := make([]float64, 0, len(recs))
	for _, r := range recs {
		absEffects = append(absEffects, math.Abs(r.Beta))
		if r.Status == StatusResolved && r.AF.Valid {
			resolvedAFs = append(resolvedAFs, r.AF.Float64)
		}
	}

	if v, err := stats.Median(absEffects); err == nil {
		s.MedianAbsEffect = null.FloatFrom(v)
	}
	if v, err := stats.Mean(resolvedAFs); err == nil {
		s.MeanResolvedAF = null.FloatFrom(v)
	}
}

// Log prints the run summary.
func (s Summary) Log() {
	log.Printf("Trait %s: %d raw rows, %d parsed, %d rejected at parse", s.Trait, s.RawRows, s.ParsedRows, s.ParseErrors)
	log.Printf("Status counts: resolved=%d unmapped-liftover=%d allele-mismatch=%d novel-variant=%d ambiguous-match=%d",
		s.Resolved, s.UnmappedLiftover, s.AlleleMismatch, s.NovelVariant, s.AmbiguousMatch)
	log.Printf("Stage errors: liftover batches=%d lookup batches=%d dbSNP lines skipped=%d",
		s.LiftoverBatchErrors, s.LookupBatchErrors, s.DbSNPSkippedLines)
	if s.MedianAbsEffect.Valid {
		log.Printf("Median |effect| = %g", s.MedianAbsEffect.Float64)
	}
	if s.MeanResolvedAF.Valid {
		log.Printf("Mean dbSNP AF among resolved = %g", s.MeanResolvedAF.Float64)
	}
}
