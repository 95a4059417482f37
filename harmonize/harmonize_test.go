package harmonize

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"gopkg.in/guregu/null.v3"
)

func TestComplementAllele(t *testing.T) {
	cases := map[string]string{
		"A":  "T",
		"c":  "G",
		"AC": "GT", // reverse complement
		"Z":  "N",
	}
	for in, want := range cases {
		if got := ComplementAllele(in); got != want {
			t.Errorf("ComplementAllele(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOrient(t *testing.T) {
	if got := Orient("A", 'A', true); got != OrientKeep {
		t.Errorf("matching ref should keep, got %v", got)
	}
	if got := Orient("A", 'T', true); got != OrientFlipStrand {
		t.Errorf("complement match should flip strand, got %v", got)
	}
	if got := Orient("A", 'G', true); got != OrientMismatch {
		t.Errorf("non-matching ref should mismatch, got %v", got)
	}
	if got := Orient("A", 0, false); got != OrientMismatch {
		t.Errorf("missing reference base should mismatch, got %v", got)
	}
	if got := Orient("A", 'N', true); got != OrientMismatch {
		t.Errorf("N reference base should mismatch, got %v", got)
	}
	if got := Orient("AT", 'A', true); got != OrientMismatch {
		t.Errorf("multi-base ref should mismatch, got %v", got)
	}
}

func TestSortDeterminism(t *testing.T) {
	recs := []Record{
		{Chromosome: "X", Position: null.IntFrom(5), Ref: "A", Alt: "G", SourcePosition: 5},
		{Chromosome: "2", Position: null.IntFrom(100), Ref: "C", Alt: "T", SourcePosition: 100},
		{Chromosome: "1", SourceChromosome: "1", SourcePosition: 900}, // unmapped: sorts by source position
		{Chromosome: "1", Position: null.IntFrom(200), Ref: "A", Alt: "C", SourcePosition: 150},
		{Chromosome: "1", Position: null.IntFrom(200), Ref: "A", Alt: "C", SourcePosition: 120},
	}

	Sort(recs)

	if recs[0].SourcePosition != 120 || recs[1].SourcePosition != 150 {
		t.Errorf("source position should break full ties: %+v", recs[:2])
	}
	if recs[2].SourcePosition != 900 {
		t.Errorf("unmapped record should sort by source position: %+v", recs[2])
	}
	if recs[3].Chromosome != "2" || recs[4].Chromosome != "X" {
		t.Errorf("chromosome order violated: %+v", recs[3:])
	}
}

func gunzipLines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()

	gz, err := gzip.NewReader(buf)
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	return lines
}

func TestWriterHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := gunzipLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected a header-only file, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(Header, "\t") {
		t.Errorf("unexpected header: %q", lines[0])
	}
}

func TestWriterRecord(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}

	rec := Record{
		RSID:             "rs123",
		UniqueID:         "1_100000_A_G",
		Chromosome:       "1",
		Position:         null.IntFrom(100000),
		Ref:              "A",
		Alt:              "G",
		Beta:             0.05,
		SE:               null.FloatFrom(0.01),
		EAF:              null.FloatFrom(0.31),
		PValue:           null.FloatFrom(0.03),
		NTotal:           null.FloatFrom(5000),
		AF:               null.FloatFrom(0.31),
		SourceBuild:      "hg19",
		SourceChromosome: "1",
		SourcePosition:   99000,
		TargetBuild:      "hg38",
		Status:           StatusResolved,
	}
	if err := w.Write(rec); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := gunzipLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 record, got %d lines", len(lines))
	}

	fields := strings.Split(lines[1], "\t")
	if len(fields) != len(Header) {
		t.Fatalf("expected %d fields, got %d", len(Header), len(fields))
	}
	byName := map[string]string{}
	for i, h := range Header {
		byName[h] = fields[i]
	}

	if byName["rsid"] != "rs123" || byName["pos"] != "100000" || byName["status"] != "resolved" {
		t.Errorf("unexpected fields: %v", byName)
	}
	if byName["pvalue_het"] != NA || byName["N_case"] != NA {
		t.Errorf("absent optionals should render as NA: %v", byName)
	}
	if byName["dbSNP_AF"] != "0.31" {
		t.Errorf("dbSNP_AF = %q", byName["dbSNP_AF"])
	}
}

func TestSummaryCounts(t *testing.T) {
	s := Summary{ParsedRows: 3}
	s.Count(StatusResolved)
	s.Count(StatusNovelVariant)
	s.Count(StatusUnmappedLiftover)

	if s.Written() != 3 {
		t.Errorf("Written = %d", s.Written())
	}
	if s.Resolved != 1 || s.NovelVariant != 1 || s.UnmappedLiftover != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
}

func TestSummaryFinalize(t *testing.T) {
	recs := []Record{
		{Beta: 0.5, Status: StatusResolved, AF: null.FloatFrom(0.2)},
		{Beta: -0.3, Status: StatusResolved, AF: null.FloatFrom(0.4)},
		{Beta: 0.1, Status: StatusNovelVariant},
	}

	var s Summary
	s.Finalize(recs)

	if !s.MedianAbsEffect.Valid || s.MedianAbsEffect.Float64 != 0.3 {
		t.Errorf("MedianAbsEffect = %+v", s.MedianAbsEffect)
	}
	if !s.MeanResolvedAF.Valid || s.MeanResolvedAF.Float64 != 0.3 {
		t.Errorf("MeanResolvedAF = %+v", s.MeanResolvedAF)
	}
}

func TestSummaryFinalizeEmpty(t *testing.T) {
	var s Summary
	s.Finalize(nil)

	if s.MedianAbsEffect.Valid || s.MeanResolvedAF.Valid {
		t.Error("aggregates over zero records should stay null")
	}
}
