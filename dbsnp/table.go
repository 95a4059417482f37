// Package dbsnp streams a large dbSNP-derived reference table and joins
// records against it by (chromosome, position, allele pair) without ever
// materializing the table in memory.
package dbsnp

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"gopkg.in/guregu/null.v3"

	gwassumstats "github.com/GMELab/gwas-summary-stats"
	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// Entry is one known variant: coordinates and alleles keyed to an rsID and a
// population allele frequency.
type Entry struct {
	Chromosome string
	Position   int64
	Ref        string
	Alt        string
	RSID       string
	AF         null.Float
}

// ReferenceTableError describes a malformed table line. Such lines are
// skipped and counted, never fatal.
type ReferenceTableError struct {
	Line   int
	Reason string
}

func (e ReferenceTableError) Error() string {
	return fmt.Sprintf("dbsnp: line %d: %s", e.Line, e.Reason)
}

// Aliases accepted for each required header column, lowercased. The position
// aliases are tried in order after the build-specific name (pos_hg38 etc.)
// supplied at Open time.
var headerAliases = map[string][]string{
	"chr":  {"chr", "chrom", "chromosome", "#chr"},
	"pos":  {"pos", "position", "bp"},
	"ref":  {"ref", "reference", "a2"},
	"alt":  {"alt", "alternate", "a1"},
	"rsid": {"rsid", "id", "name", "snp"},
	"af":   {"af", "allele_frequency", "gnomad_af", "gnomad_af_nfe", "gnomad_af_eur"},
}

type tableCols struct {
	chrom, pos, ref, alt, rsid, af int
}

// Table is a forward-only cursor over the sorted reference table.
type Table struct {
	csv  *csv.Reader
	cols tableCols
	line int

	// Skipped counts malformed or out-of-order lines dropped during the
	// scan.
	Skipped int

	// last successfully read key, for the sortedness guard
	prevChrom string
	prevPos   int64

	err error
}

// Open sets up a streaming reader over the table at path (optionally
// gzipped, optionally gs://). build selects the position column when the
// table carries coordinates for several builds (pos_hg38 vs pos_hg19); pass
// "" when the table has a plain pos column. The caller must Close.
func Open(path, build string, client *storage.Client) (*Table, io.Closer, error) {
	r, closer, err := gwassumstats.OpenMaybeCompressed(path, client)
	if err != nil {
		return nil, nil, pfx.Err(err)
	}

	t, err := NewTable(r, build)
	if err != nil {
		r.Close()
		closer.Close()
		return nil, nil, err
	}

	return t, multiCloser{r, closer}, nil
}

// NewTable reads the header from r and resolves the required columns.
func NewTable(r io.Reader, build string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dbsnp: reading table header: %w", err)
	}

	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}

	find := func(names []string) int {
		for _, name := range names {
			for i, h := range lower {
				if h == name {
					return i
				}
			}
		}
		return -1
	}

	t := &Table{csv: cr, line: 1}

	posNames := headerAliases["pos"]
	if build != "" {
		posNames = append([]string{"pos_" + strings.ToLower(build)}, posNames...)
	}

	required := []struct {
		key   string
		names []string
		dst   *int
	}{
		{"chr", headerAliases["chr"], &t.cols.chrom},
		{"pos", posNames, &t.cols.pos},
		{"ref", headerAliases["ref"], &t.cols.ref},
		{"alt", headerAliases["alt"], &t.cols.alt},
		{"rsid", headerAliases["rsid"], &t.cols.rsid},
		{"af", headerAliases["af"], &t.cols.af},
	}
	for _, req := range required {
		idx := find(req.names)
		if idx < 0 {
			return nil, fmt.Errorf("dbsnp: table is missing a %s column (accepted names: %s)", req.key, strings.Join(req.names, ", "))
		}
		*req.dst = idx
	}

	return t, nil
}

// next returns the next well-formed, in-order entry. Malformed and
// out-of-order lines are counted in Skipped. ok is false at the end of the
// table or on a stream error (recorded in t.err).
func (t *Table) next() (entry Entry, ok bool) {
	for {
		row, err := t.csv.Read()
		if err == io.EOF {
			return Entry{}, false
		} else if err != nil {
			if _, isParse := err.(*csv.ParseError); isParse {
				t.line++
				t.Skipped++
				continue
			}
			t.err = err
			return Entry{}, false
		}
		t.line++

		e, perr := t.parse(row)
		if perr != nil {
			t.Skipped++
			continue
		}

		// The merge depends on the documented sort order; a line that goes
		// backwards would silently corrupt it, so it is dropped and counted
		// like any other malformed line.
		if t.prevChrom != "" && chrpos.Less(e.Chromosome, e.Position, t.prevChrom, t.prevPos) {
			t.Skipped++
			continue
		}
		t.prevChrom, t.prevPos = e.Chromosome, e.Position

		return e, true
	}
}

func (t *Table) parse(row []string) (Entry, error) {
	at := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	e := Entry{
		Chromosome: chrpos.Normalize(at(t.cols.chrom)),
		Ref:        strings.ToUpper(at(t.cols.ref)),
		Alt:        strings.ToUpper(at(t.cols.alt)),
		RSID:       at(t.cols.rsid),
	}

	if e.Chromosome == "" || e.Ref == "" || e.Alt == "" || e.RSID == "" {
		return e, ReferenceTableError{Line: t.line, Reason: "missing field"}
	}

	pos, err := strconv.ParseInt(at(t.cols.pos), 10, 64)
	if err != nil || pos <= 0 {
		return e, ReferenceTableError{Line: t.line, Reason: fmt.Sprintf("unusable position %q", at(t.cols.pos))}
	}
	e.Position = pos

	if afS := at(t.cols.af); afS != "" && afS != "NA" && afS != "." {
		if af, err := strconv.ParseFloat(afS, 64); err == nil {
			e.AF = null.FloatFrom(af)
		}
	}

	return e, nil
}

// Err reports a stream-level failure encountered mid-scan, as opposed to the
// per-line problems counted in Skipped.
func (t *Table) Err() error {
	return t.err
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
