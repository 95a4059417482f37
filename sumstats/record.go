package sumstats

import (
	"strconv"

	"gopkg.in/guregu/null.v3"
)

// Record is one parsed, normalized summary statistics row. Chromosome is
// normalized (no chr prefix, X/Y/M rather than 23/24/25), Position is the
// 1-based position in the source build. Lifted is set by the liftover stage;
// until then it is null.
type Record struct {
	// Index is the record's position in the input file and its stable
	// identity across the batched stages.
	Index int

	RSID       null.String
	Chromosome string
	Position   int64

	// LiftedChromosome and LiftedPosition are the target-build coordinates.
	// Null when liftover has not run or reported the interval unmapped.
	LiftedChromosome null.String
	LiftedPosition   null.Int

	Ref string
	Alt string

	Beta      float64
	SE        null.Float
	EAF       null.Float
	PValue    null.Float
	PValueHet null.Float

	NTotal null.Float
	NCase  null.Float
	NCtrl  null.Float
}

// Mapped reports whether the record has target-build coordinates.
func (r Record) Mapped() bool {
	return r.LiftedPosition.Valid && r.LiftedChromosome.Valid
}

// UniqueID synthesizes the chr_pos_ref_alt identifier used in the output for
// variants that resolve to no rsID. Target-build coordinates are preferred
// when present.
func (r Record) UniqueID() string {
	chrom, pos := r.Chromosome, r.Position
	if r.Mapped() {
		chrom = r.LiftedChromosome.String
		pos = r.LiftedPosition.Int64
	}

	return chrom + "_" + strconv.FormatInt(pos, 10) + "_" + r.Ref + "_" + r.Alt
}
