// Package sumstats parses raw GWAS summary statistics files into normalized
// records, tolerating the column naming and formatting quirks of different
// source labs.
package sumstats

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/guregu/null.v3"

	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// SchemaError means a required column could not be located in the header. It
// is fatal: no rows can be parsed without it.
type SchemaError struct {
	Column string
}

func (e SchemaError) Error() string {
	return fmt.Sprintf("sumstats: required column %q not found in header", e.Column)
}

// ParseError covers a single unusable row: the row is excluded and counted,
// and parsing continues.
type ParseError struct {
	Line   int
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("sumstats: line %d: %s", e.Line, e.Reason)
}

// Allele placeholders some labs emit for indels. We cannot orient these
// against a reference base, so their rows are rejected.
var indelPlaceholders = map[string]bool{
	"I": true, "D": true, "IND": true, "DEL": true,
}

type columns struct {
	rsid, chrom, pos, ref, alt     int
	effect, se, eaf, pval, pvalHet int
	nTotal, nCase, nCtrl           int
}

// Reader yields Records from a raw delimited stream.
type Reader struct {
	csv    *csv.Reader
	layout Layout
	cols   columns

	// base is the number of physical lines consumed before the data stream
	// (the header and anything skipped ahead of it), so reported line numbers
	// match the file.
	base  int
	line  int
	index int

	fixedNTotal null.Float
	fixedNCase  null.Float
	fixedNCtrl  null.Float
}

// NewReader reads the header from r and resolves the layout against it.
// Returns a SchemaError when a required column is missing.
func NewReader(r io.Reader, layout Layout) (*Reader, error) {
	br := bufio.NewReader(r)

	header, consumed, err := readHeader(br, layout)
	if err != nil {
		return nil, err
	}

	if len(header) <= 4 {
		return nil, fmt.Errorf("sumstats: header has %d columns; the column delimiter was likely misspecified", len(header))
	}

	cr := csv.NewReader(br)
	cr.Comma = layout.Delimiter
	if layout.Comment != 0 {
		cr.Comment = layout.Comment
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rd := &Reader{csv: cr, layout: layout, base: consumed}

	required := []struct {
		named string
		field string
		dst   *int
	}{
		{layout.Chromosome, FieldChromosome, &rd.cols.chrom},
		{layout.Position, FieldPosition, &rd.cols.pos},
		{layout.Ref, FieldRef, &rd.cols.ref},
		{layout.Alt, FieldAlt, &rd.cols.alt},
		{layout.EffectSize, FieldEffectSize, &rd.cols.effect},
		{layout.SE, FieldSE, &rd.cols.se},
		{layout.PValue, FieldPValue, &rd.cols.pval},
	}
	for _, req := range required {
		idx := layout.columnIndex(header, req.named, req.field)
		if idx < 0 {
			name := req.named
			if name == "" {
				name = req.field
			}
			return nil, SchemaError{Column: name}
		}
		*req.dst = idx
	}

	rd.cols.rsid = layout.columnIndex(header, layout.RSID, FieldRSID)
	rd.cols.eaf = layout.columnIndex(header, layout.EAF, FieldEAF)
	rd.cols.pvalHet = layout.columnIndex(header, layout.PValueHet, FieldPValueHet)
	rd.cols.nTotal = layout.columnIndex(header, layout.NTotal, FieldNTotal)
	rd.cols.nCase = layout.columnIndex(header, layout.NCase, FieldNCase)
	rd.cols.nCtrl = layout.columnIndex(header, layout.NCtrl, FieldNCtrl)

	rd.fixedNTotal = parseOptionalFloat(layout.FixedNTotal)
	rd.fixedNCase = parseOptionalFloat(layout.FixedNCase)
	rd.fixedNCtrl = parseOptionalFloat(layout.FixedNCtrl)

	return rd, nil
}

// Read returns the next Record. A malformed row yields a ParseError; the
// caller should count it and continue. io.EOF signals the end of input.
func (rd *Reader) Read() (Record, error) {
	row, err := rd.csv.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	} else if err != nil {
		line := rd.base
		reason := err.Error()
		if pe, ok := err.(*csv.ParseError); ok {
			line += pe.Line
			reason = pe.Err.Error()
		}
		return Record{}, ParseError{Line: line, Reason: reason}
	}

	// FieldPos accounts for comment and blank lines the csv reader skipped,
	// so reported line numbers track the physical file.
	recLine, _ := rd.csv.FieldPos(0)
	rd.line = rd.base + recLine

	rec, err := rd.parseRow(row)
	if err != nil {
		return Record{}, err
	}

	rec.Index = rd.index
	rd.index++

	return rec, nil
}

// readHeader scans past blank lines and leading comments to the header row,
// returning its fields and the number of physical lines consumed. Some labs
// prefix the header itself with the comment rune (#CHR, #CHROM), so a
// comment-prefixed line that splits into enough columns is taken as the
// header rather than discarded.
func readHeader(br *bufio.Reader, layout Layout) ([]string, int, error) {
	consumed := 0
	for {
		line, err := br.ReadString('\n')
		if line == "" {
			if err == io.EOF {
				return nil, consumed, SchemaError{Column: "(empty file)"}
			}
			if err != nil {
				return nil, consumed, err
			}
		}
		consumed++

		text := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if layout.Comment != 0 && strings.HasPrefix(text, string(layout.Comment)) {
			fields, ferr := splitRow(strings.TrimPrefix(text, string(layout.Comment)), layout.Delimiter)
			if ferr == nil && len(fields) > 4 {
				return fields, consumed, nil
			}
			continue
		}

		fields, ferr := splitRow(text, layout.Delimiter)
		if ferr != nil {
			return nil, consumed, ferr
		}

		return fields, consumed, nil
	}
}

// splitRow parses a single line with the same csv settings the data stream
// uses, so quoting behaves identically in the header and the body.
func splitRow(line string, comma rune) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	return cr.Read()
}

func (rd *Reader) parseRow(row []string) (Record, error) {
	at := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rec := Record{}

	rec.Chromosome = chrpos.Normalize(at(rd.cols.chrom))
	if rec.Chromosome == "" || rec.Chromosome == "NA" {
		return rec, ParseError{Line: rd.line, Reason: "missing chromosome"}
	}

	pos, err := strconv.ParseInt(at(rd.cols.pos), 10, 64)
	if err != nil || pos <= 0 {
		return rec, ParseError{Line: rd.line, Reason: fmt.Sprintf("unusable position %q", at(rd.cols.pos))}
	}
	rec.Position = pos

	rec.Ref = strings.ToUpper(at(rd.cols.ref))
	rec.Alt = strings.ToUpper(at(rd.cols.alt))
	if rec.Ref == "" || rec.Alt == "" {
		return rec, ParseError{Line: rd.line, Reason: "missing allele"}
	}
	if indelPlaceholders[rec.Ref] || indelPlaceholders[rec.Alt] {
		return rec, ParseError{Line: rd.line, Reason: "ambiguous indel placeholder allele"}
	}

	effectS := at(rd.cols.effect)
	switch effectS {
	case "", "NA", "NaN", "Nan", "nan", "Inf", "-Inf", "inf", "-inf":
		return rec, ParseError{Line: rd.line, Reason: fmt.Sprintf("nonsensical effect estimate %q", effectS)}
	}
	effect, err := strconv.ParseFloat(effectS, 64)
	if err != nil || math.IsNaN(effect) || math.IsInf(effect, 0) {
		return rec, ParseError{Line: rd.line, Reason: fmt.Sprintf("nonsensical effect estimate %q", effectS)}
	}

	if rd.layout.EffectIsOR {
		// Odds and hazard ratios are converted to log scale so all traits
		// share the beta convention.
		if effect <= 0 {
			return rec, ParseError{Line: rd.line, Reason: fmt.Sprintf("odds ratio %q is not positive", effectS)}
		}
		effect = math.Log(effect)
	}
	rec.Beta = effect

	rec.SE = parseOptionalFloat(at(rd.cols.se))
	if !rec.SE.Valid {
		return rec, ParseError{Line: rd.line, Reason: fmt.Sprintf("unusable standard error %q", at(rd.cols.se))}
	}

	rec.PValue = parseOptionalFloat(at(rd.cols.pval))
	if !rec.PValue.Valid {
		return rec, ParseError{Line: rd.line, Reason: fmt.Sprintf("unusable p-value %q", at(rd.cols.pval))}
	}

	if rd.cols.rsid >= 0 {
		if v := at(rd.cols.rsid); v != "" && v != "NA" {
			rec.RSID = null.StringFrom(v)
		}
	}
	rec.EAF = parseOptionalFloat(at(rd.cols.eaf))
	rec.PValueHet = parseOptionalFloat(at(rd.cols.pvalHet))

	rec.NTotal = firstValid(parseOptionalFloat(at(rd.cols.nTotal)), rd.fixedNTotal)
	rec.NCase = firstValid(parseOptionalFloat(at(rd.cols.nCase)), rd.fixedNCase)
	rec.NCtrl = firstValid(parseOptionalFloat(at(rd.cols.nCtrl)), rd.fixedNCtrl)
	reconcileSampleSizes(&rec)

	return rec, nil
}

// reconcileSampleSizes fills whichever of N_total, N_case, N_ctrl can be
// derived from the other two.
func reconcileSampleSizes(rec *Record) {
	switch {
	case rec.NCase.Valid && rec.NCtrl.Valid && !rec.NTotal.Valid:
		rec.NTotal = null.FloatFrom(rec.NCase.Float64 + rec.NCtrl.Float64)
	case rec.NTotal.Valid && rec.NCtrl.Valid && !rec.NCase.Valid:
		rec.NCase = null.FloatFrom(rec.NTotal.Float64 - rec.NCtrl.Float64)
	case rec.NTotal.Valid && rec.NCase.Valid && !rec.NCtrl.Valid:
		rec.NCtrl = null.FloatFrom(rec.NTotal.Float64 - rec.NCase.Float64)
	}
}

func parseOptionalFloat(s string) null.Float {
	if s == "" || s == "NA" || s == "NaN" || s == "." {
		return null.Float{}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}

	return null.FloatFrom(v)
}

func firstValid(vals ...null.Float) null.Float {
	for _, v := range vals {
		if v.Valid {
			return v
		}
	}

	return null.Float{}
}
