// Package harmonize applies allele-orientation rules, assembles the final
// output records, and streams them to the compressed sink.
package harmonize

import (
	"sort"
	"strconv"

	"gopkg.in/guregu/null.v3"

	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// Status tags how far a record made it through the pipeline. Every parsed
// record appears in the output with exactly one of these.
type Status int

const (
	// StatusResolved: lifted, orientation-checked, and matched in dbSNP.
	StatusResolved Status = iota
	// StatusUnmappedLiftover: the liftover tool reported the interval
	// unmapped (or its batch failed); downstream stages were skipped.
	StatusUnmappedLiftover
	// StatusAlleleMismatch: neither the stated reference allele nor its
	// complement matches the reference genome, or the reference base could
	// not be fetched.
	StatusAlleleMismatch
	// StatusNovelVariant: no dbSNP entry with this allele pair at this
	// position.
	StatusNovelVariant
	// StatusAmbiguousMatch: multiple dbSNP entries matched equally well, so
	// no rsID can be assigned. A sub-category of novel.
	StatusAmbiguousMatch
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusUnmappedLiftover:
		return "unmapped-liftover"
	case StatusAlleleMismatch:
		return "allele-mismatch"
	case StatusNovelVariant:
		return "novel-variant"
	case StatusAmbiguousMatch:
		return "ambiguous-match"
	}

	return "unknown"
}

// Record is the final output schema.
type Record struct {
	// RSID is empty unless the variant resolved in dbSNP.
	RSID string
	// UniqueID is the synthesized chr_pos_ref_alt identifier, present for
	// every record so unresolved variants remain addressable.
	UniqueID string

	// Chromosome and Position are target-build coordinates; Position is
	// null for unmapped records, in which case Chromosome holds the source
	// chromosome.
	Chromosome string
	Position   null.Int

	Ref string
	Alt string

	Beta      float64
	SE        null.Float
	EAF       null.Float
	PValue    null.Float
	PValueHet null.Float
	NTotal    null.Float
	NCase     null.Float
	NCtrl     null.Float

	// AF is the population allele frequency from dbSNP, when matched.
	AF null.Float

	SourceBuild      string
	SourceChromosome string
	SourcePosition   int64
	TargetBuild      string

	Status Status
}

// sortPosition is the coordinate used for deterministic ordering: the lifted
// position when present, otherwise the source position.
func (r Record) sortPosition() int64 {
	if r.Position.Valid {
		return r.Position.Int64
	}

	return r.SourcePosition
}

// Sort orders records deterministically: canonical chromosome order, then
// position, then alleles, then the source position as a final tie-break.
// Reruns over identical input therefore produce byte-identical output no
// matter which batches finished first.
func Sort(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if c := chrpos.Compare(a.Chromosome, b.Chromosome); c != 0 {
			return c < 0
		}
		if a.sortPosition() != b.sortPosition() {
			return a.sortPosition() < b.sortPosition()
		}
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		if a.Alt != b.Alt {
			return a.Alt < b.Alt
		}

		return a.SourcePosition < b.SourcePosition
	})
}

// NA is how absent optional values are rendered in the output.
const NA = "NA"

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// NullFloatFormatter renders an optional float, NA when absent.
func NullFloatFormatter(v null.Float) string {
	if !v.Valid {
		return NA
	}

	return formatFloat(v.Float64)
}

// NullIntFormatter renders an optional integer, NA when absent.
func NullIntFormatter(v null.Int) string {
	if !v.Valid {
		return NA
	}

	return strconv.FormatInt(v.Int64, 10)
}
