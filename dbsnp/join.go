package dbsnp

import (
	"fmt"

	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// Site is one record's target-build key into the table. ID correlates the
// match back to the originating record.
type Site struct {
	ID         int
	Chromosome string
	Position   int64
	Ref        string
	Alt        string
}

// Match is the outcome of resolving one site.
type Match struct {
	Entry Entry

	// Flipped means the site's alleles matched the entry with ref and alt
	// reversed; the caller must swap alleles, negate the effect, and
	// complement the allele frequency.
	Flipped bool

	// Ambiguous means more than one entry at the site matched the allele
	// pair, so no rsID can be assigned with confidence.
	Ambiguous bool
}

// Join merges sites against the table in a single forward pass. Sites must
// be sorted by (chromosome, position) in the canonical order; the table
// cursor only ever advances. Sites with no matching entry are absent from
// the returned map (novel variants). Multi-allelic positions match only the
// entry whose allele pair equals the site's, in either order.
func (t *Table) Join(sites []Site) (map[int]Match, error) {
	out := make(map[int]Match)

	cur, ok := t.next()

	// pending holds every table entry at the key currently under the
	// cursor, since several sites (and several table entries) can share one
	// position.
	var pending []Entry
	var pendingChrom string
	var pendingPos int64 = -1

	for i, s := range sites {
		if i > 0 && chrpos.Less(s.Chromosome, s.Position, sites[i-1].Chromosome, sites[i-1].Position) {
			return out, fmt.Errorf("dbsnp: join input is not sorted at %s:%d", s.Chromosome, s.Position)
		}

		if s.Chromosome != pendingChrom || s.Position != pendingPos {
			pending = pending[:0]
			pendingChrom, pendingPos = s.Chromosome, s.Position

			for ok && entryBefore(cur, s) {
				cur, ok = t.next()
			}
			for ok && cur.Chromosome == s.Chromosome && cur.Position == s.Position {
				pending = append(pending, cur)
				cur, ok = t.next()
			}
		}

		if m, matched := matchAlleles(pending, s); matched {
			out[s.ID] = m
		}
	}

	return out, t.err
}

func entryBefore(e Entry, s Site) bool {
	return chrpos.Less(e.Chromosome, e.Position, s.Chromosome, s.Position)
}

// matchAlleles picks the entry whose allele pair equals the site's. An exact
// (ref=ref, alt=alt) match wins over a reversed one. Multiple equally good
// candidates mean the site cannot be assigned an rsID and come back
// Ambiguous.
func matchAlleles(pending []Entry, s Site) (Match, bool) {
	var straight, flipped []Entry
	for _, e := range pending {
		switch {
		case e.Ref == s.Ref && e.Alt == s.Alt:
			straight = append(straight, e)
		case e.Ref == s.Alt && e.Alt == s.Ref:
			flipped = append(flipped, e)
		}
	}

	switch {
	case len(straight) == 1:
		return Match{Entry: straight[0]}, true
	case len(straight) > 1:
		return Match{Ambiguous: true}, true
	case len(flipped) == 1:
		return Match{Entry: flipped[0], Flipped: true}, true
	case len(flipped) > 1:
		return Match{Ambiguous: true}, true
	}

	return Match{}, false
}
