package sumstats

import (
	"strings"

	"github.com/GMELab/gwas-summary-stats/legend"
)

// A Layout names the columns of one lab's summary statistics file. Column
// names are matched against the header case-insensitively. When the legend
// does not name a column, the per-field alias lists are consulted instead, so
// a file using any of the common conventions still parses without a bespoke
// legend entry.
type Layout struct {
	Delimiter rune
	Comment   rune

	RSID       string
	Chromosome string
	Position   string
	Ref        string
	Alt        string
	EffectSize string
	SE         string
	EAF        string
	PValue     string
	PValueHet  string
	NTotal     string
	NCase      string
	NCtrl      string

	// EffectIsOR marks files whose effect column is an odds (or hazard)
	// ratio; ParseRow converts it to a beta via the natural log.
	EffectIsOR bool

	// FixedNTotal et al. are study-wide sample sizes applied to every row
	// when the file carries no per-variant count column.
	FixedNTotal string
	FixedNCase  string
	FixedNCtrl  string

	// Aliases maps a field key (see the Field* constants) to alternate
	// header spellings. Defaults cover the common lab conventions; callers
	// may extend or replace them.
	Aliases map[string][]string
}

// Field keys into Layout.Aliases.
const (
	FieldRSID       = "rsid"
	FieldChromosome = "chr"
	FieldPosition   = "pos"
	FieldRef        = "ref"
	FieldAlt        = "alt"
	FieldEffectSize = "effect_size"
	FieldSE         = "standard_error"
	FieldEAF        = "EAF"
	FieldPValue     = "pvalue"
	FieldPValueHet  = "pvalue_het"
	FieldNTotal     = "N_total"
	FieldNCase      = "N_case"
	FieldNCtrl      = "N_ctrl"
)

// DefaultAliases reflects the column spellings we have actually received
// from source labs. BOLT-LMM, SAIGE, REGENIE, METAL, and GWAS-catalog
// conventions are all represented.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		FieldRSID:       {"rsid", "snp", "snpid", "markername", "variant_id", "id"},
		FieldChromosome: {"chr", "chrom", "chromosome", "#chr", "#chrom"},
		FieldPosition:   {"pos", "bp", "position", "base_pair_location", "pos_b37", "genpos"},
		FieldRef:        {"ref", "allele0", "a2", "allele2", "other_allele", "non_effect_allele", "nea"},
		FieldAlt:        {"alt", "allele1", "a1", "effect_allele", "ea"},
		FieldEffectSize: {"beta", "effect_size", "b", "effect", "or", "log_odds"},
		FieldSE:         {"se", "standard_error", "stderr", "sebeta"},
		// "maf" is deliberately absent: minor-allele frequency is not the
		// effect-allele frequency, and treating it as one corrupts the
		// complement taken on an allele swap.
		FieldEAF:        {"eaf", "af", "a1freq", "effect_allele_frequency", "freq"},
		FieldPValue:     {"p", "pval", "pvalue", "p_value", "p_bolt_lmm", "p.value"},
		FieldPValueHet:  {"p_het", "phet", "pvalue_het", "hetpval"},
		FieldNTotal:     {"n", "n_total", "ntotal", "samplesize", "n_samples"},
		FieldNCase:      {"n_case", "ncase", "n_cases", "ncas"},
		FieldNCtrl:      {"n_ctrl", "nctrl", "n_controls", "ncon"},
	}
}

// LayoutFromLegend builds a Layout from a validated legend row. The
// delimiter is left unset when the legend says "auto"; the caller sniffs it.
func LayoutFromLegend(t legend.Trait) Layout {
	l := Layout{
		Comment:     '#',
		RSID:        cleanName(t.RSID),
		Chromosome:  cleanName(t.Chromosome),
		Position:    cleanName(t.Position),
		Ref:         cleanName(t.Ref),
		Alt:         cleanName(t.Alt),
		EffectSize:  cleanName(t.EffectSize),
		SE:          cleanName(t.SE),
		EAF:         cleanName(t.EAF),
		PValue:      cleanName(t.PValue),
		PValueHet:   cleanName(t.PValueHet),
		NTotal:      cleanName(t.NTotalCol),
		NCase:       cleanName(t.NCaseCol),
		NCtrl:       cleanName(t.NCtrlCol),
		EffectIsOR:  t.EffectIsOR == "Y",
		FixedNTotal: cleanName(t.NTotal),
		FixedNCase:  cleanName(t.NCase),
		FixedNCtrl:  cleanName(t.NCtrl),
		Aliases:     DefaultAliases(),
	}

	if delim, ok := t.DelimiterRune(); ok {
		l.Delimiter = delim
	}

	return l
}

func cleanName(s string) string {
	if s == legend.NA || s == "NaN" {
		return ""
	}

	return s
}

// columnIndex resolves one field to a header index: the explicitly named
// column first, then the alias list. Returns -1 when the field cannot be
// located.
func (l Layout) columnIndex(header []string, named, fieldKey string) int {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	if named != "" {
		want := strings.ToLower(named)
		for i, h := range lower {
			if h == want {
				return i
			}
		}
		// The legend promised this column; do not fall through to aliases,
		// or a misconfigured legend would silently bind the wrong column.
		return -1
	}

	for _, alias := range l.Aliases[fieldKey] {
		for i, h := range lower {
			if h == alias {
				return i
			}
		}
	}

	return -1
}
