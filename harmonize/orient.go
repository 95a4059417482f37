package harmonize

import "strings"

// Orientation is the outcome of comparing a record's stated reference allele
// against the base fetched from the target-build reference genome.
type Orientation int

const (
	// OrientKeep: the stated reference allele matches the reference base.
	OrientKeep Orientation = iota
	// OrientFlipStrand: the complement matches; the variant was reported on
	// the opposite strand. Both alleles are complemented; the effect
	// direction is unchanged, because a strand flip does not change which
	// allele carries the effect.
	OrientFlipStrand
	// OrientMismatch: neither matches, or no reference base is available.
	// The record keeps its original alleles and is flagged; we never
	// fabricate a direction.
	OrientMismatch
)

var complement = map[byte]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'N': 'N',
}

// ComplementAllele reverse-complements an allele string. Bases outside ACGT
// are preserved as N.
func ComplementAllele(allele string) string {
	b := []byte(strings.ToUpper(allele))
	out := make([]byte, len(b))
	for i, c := range b {
		comp, ok := complement[c]
		if !ok {
			comp = 'N'
		}
		out[len(b)-1-i] = comp
	}

	return string(out)
}

// Orient decides how the record's alleles relate to the fetched reference
// base. haveBase is false when the position was missing from the reference
// index.
func Orient(ref string, base byte, haveBase bool) Orientation {
	if !haveBase || base == 'N' {
		return OrientMismatch
	}
	if len(ref) != 1 {
		// Multi-base reference alleles cannot be validated against a single
		// fetched base.
		return OrientMismatch
	}

	r := ref[0]
	if r == base {
		return OrientKeep
	}
	if complement[r] == base {
		return OrientFlipStrand
	}

	return OrientMismatch
}
