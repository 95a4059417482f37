package dbsnp

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tableTSV = "chr\tpos\tref\talt\trsid\taf\n" +
	"1\t100000\tA\tG\trs123\t0.31\n" +
	"1\t100500\tC\tT\trs200\t0.10\n" +
	"1\t100500\tC\tA\trs201\t0.02\n" + // multi-allelic site
	"1\tnotanumber\tC\tG\trs999\t0.5\n" + // malformed: unusable position
	"2\t50\tG\tC\trs300\tNA\n" +
	"X\t700\tT\tA\trs400\t0.44\n"

func newTestTable(t *testing.T, tsv string) *Table {
	t.Helper()

	tbl, err := NewTable(strings.NewReader(tsv), "")
	if err != nil {
		t.Fatal(err)
	}

	return tbl
}

func TestJoinStraightAndNovel(t *testing.T) {
	tbl := newTestTable(t, tableTSV)

	sites := []Site{
		{ID: 0, Chromosome: "1", Position: 100000, Ref: "A", Alt: "G"},
		{ID: 1, Chromosome: "1", Position: 123456, Ref: "A", Alt: "C"}, // novel
		{ID: 2, Chromosome: "2", Position: 50, Ref: "G", Alt: "C"},
		{ID: 3, Chromosome: "X", Position: 700, Ref: "T", Alt: "A"},
	}

	matches, err := tbl.Join(sites)
	if err != nil {
		t.Fatal(err)
	}

	m, ok := matches[0]
	if !ok || m.Entry.RSID != "rs123" || m.Flipped || m.Ambiguous {
		t.Errorf("site 0: %+v, ok=%v", m, ok)
	}
	if !m.Entry.AF.Valid || m.Entry.AF.Float64 != 0.31 {
		t.Errorf("site 0 AF: %+v", m.Entry.AF)
	}

	if _, ok := matches[1]; ok {
		t.Error("site 1 should be novel")
	}

	if m := matches[2]; m.Entry.RSID != "rs300" || m.Entry.AF.Valid {
		t.Errorf("site 2: %+v", m)
	}
	if m := matches[3]; m.Entry.RSID != "rs400" {
		t.Errorf("site 3: %+v", m)
	}

	// The malformed position line was skipped and counted.
	if tbl.Skipped != 1 {
		t.Errorf("expected 1 skipped line, got %d", tbl.Skipped)
	}
}

func TestJoinFlipped(t *testing.T) {
	tbl := newTestTable(t, tableTSV)

	matches, err := tbl.Join([]Site{{ID: 0, Chromosome: "1", Position: 100000, Ref: "G", Alt: "A"}})
	if err != nil {
		t.Fatal(err)
	}

	m, ok := matches[0]
	if !ok || !m.Flipped || m.Entry.RSID != "rs123" {
		t.Errorf("expected a flipped match on rs123, got %+v, ok=%v", m, ok)
	}
}

func TestJoinMultiAllelic(t *testing.T) {
	tbl := newTestTable(t, tableTSV)

	matches, err := tbl.Join([]Site{
		{ID: 0, Chromosome: "1", Position: 100500, Ref: "C", Alt: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	m, ok := matches[0]
	if !ok || m.Entry.RSID != "rs201" {
		t.Errorf("expected the allele-matched entry rs201, got %+v, ok=%v", m, ok)
	}
}

func TestJoinAmbiguous(t *testing.T) {
	// Two entries at one site that both match the record's alleles under
	// reversal: neither can be chosen.
	tsv := "chr\tpos\tref\talt\trsid\taf\n" +
		"1\t500\tA\tG\trs1\t0.1\n" +
		"1\t500\tA\tG\trs2\t0.2\n"
	tbl := newTestTable(t, tsv)

	matches, err := tbl.Join([]Site{{ID: 0, Chromosome: "1", Position: 500, Ref: "A", Alt: "G"}})
	if err != nil {
		t.Fatal(err)
	}

	m, ok := matches[0]
	if !ok || !m.Ambiguous {
		t.Errorf("expected an ambiguous match, got %+v, ok=%v", m, ok)
	}
}

func TestJoinSharedPosition(t *testing.T) {
	// Two input sites at the same position must both see the full entry set
	// there even though the table cursor cannot rewind.
	tbl := newTestTable(t, tableTSV)

	matches, err := tbl.Join([]Site{
		{ID: 0, Chromosome: "1", Position: 100500, Ref: "C", Alt: "T"},
		{ID: 1, Chromosome: "1", Position: 100500, Ref: "C", Alt: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if matches[0].Entry.RSID != "rs200" || matches[1].Entry.RSID != "rs201" {
		t.Errorf("expected rs200 and rs201, got %+v", matches)
	}
}

func TestJoinRejectsUnsortedSites(t *testing.T) {
	tbl := newTestTable(t, tableTSV)

	_, err := tbl.Join([]Site{
		{ID: 0, Chromosome: "2", Position: 50, Ref: "G", Alt: "C"},
		{ID: 1, Chromosome: "1", Position: 100000, Ref: "A", Alt: "G"},
	})
	if err == nil {
		t.Fatal("expected an error for unsorted join input")
	}
}

func TestOutOfOrderTableLineSkipped(t *testing.T) {
	tsv := "chr\tpos\tref\talt\trsid\taf\n" +
		"1\t200\tA\tG\trs1\t0.1\n" +
		"1\t100\tC\tT\trs2\t0.2\n" + // goes backwards: dropped
		"1\t300\tG\tA\trs3\t0.3\n"
	tbl := newTestTable(t, tsv)

	matches, err := tbl.Join([]Site{{ID: 0, Chromosome: "1", Position: 300, Ref: "G", Alt: "A"}})
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Entry.RSID != "rs3" {
		t.Errorf("expected rs3, got %+v", matches[0])
	}
	if tbl.Skipped != 1 {
		t.Errorf("expected the out-of-order line to be counted, got %d", tbl.Skipped)
	}
}

func TestMissingColumn(t *testing.T) {
	if _, err := NewTable(strings.NewReader("chr\tpos\tref\talt\trsid\n"), ""); err == nil {
		t.Error("expected an error for a table without an af column")
	}
}

func TestBuildSpecificPositionColumn(t *testing.T) {
	tsv := "chr\tpos_hg19\tpos_hg38\tref\talt\trsid\taf\n" +
		"1\t90000\t100000\tA\tG\trs123\t0.31\n"
	tbl, err := NewTable(strings.NewReader(tsv), "hg38")
	if err != nil {
		t.Fatal(err)
	}

	matches, err := tbl.Join([]Site{{ID: 0, Chromosome: "1", Position: 100000, Ref: "A", Alt: "G"}})
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Entry.RSID != "rs123" {
		t.Errorf("expected the hg38 position column to be used: %+v", matches)
	}
}

func TestOpenGzipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbsnp.tsv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(tableTSV)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	tbl, closer, err := Open(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	matches, err := tbl.Join([]Site{{ID: 0, Chromosome: "1", Position: 100000, Ref: "A", Alt: "G"}})
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Entry.RSID != "rs123" {
		t.Errorf("gzipped open: %+v", matches)
	}
}
