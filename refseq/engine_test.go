package refseq

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestParseFasta(t *testing.T) {
	buf := bytes.NewBufferString(">chr1:100-100\na\n>chr2:200-200\nC\n>chr3:300-300\nNN\n>chrX:5-5\nT\n")

	bases, err := parseFasta(buf)
	if err != nil {
		t.Fatal(err)
	}

	if got := bases[Query{"1", 100}]; got != 'A' {
		t.Errorf("chr1:100 = %c, want A (uppercased)", got)
	}
	if got := bases[Query{"2", 200}]; got != 'C' {
		t.Errorf("chr2:200 = %c", got)
	}
	if got := bases[Query{"3", 300}]; got != 'N' {
		t.Errorf("multi-base response should map to N, got %c", got)
	}
	if got := bases[Query{"X", 5}]; got != 'T' {
		t.Errorf("chrX:5 = %c", got)
	}
}

func TestParseFastaEmptySequence(t *testing.T) {
	// A position beyond the end of a contig yields a header with no
	// sequence; it must be absent from the result, not mapped to a base.
	buf := bytes.NewBufferString(">chr1:999999999-999999999\n>chr1:10-10\nG\n")

	bases, err := parseFasta(buf)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := bases[Query{"1", 999999999}]; ok {
		t.Error("off-contig position should be missing from the result")
	}
	if got := bases[Query{"1", 10}]; got != 'G' {
		t.Errorf("chr1:10 = %c", got)
	}
}

func TestRegionRoundTrip(t *testing.T) {
	q := Query{Chromosome: "17", Position: 7579472}
	if got := Region(q); got != "chr17:7579472-7579472" {
		t.Errorf("Region = %q", got)
	}

	back, err := parseRegion(Region(q))
	if err != nil {
		t.Fatal(err)
	}
	if back != q {
		t.Errorf("round trip: %+v", back)
	}
}

// stubSamtools answers faidx queries deterministically from the position:
// even positions are A, odd are C. Regions on the contig named chrMISSING
// produce a header with no sequence, like a real out-of-range query.
const stubSamtools = `#!/bin/sh
shift 2
for region in "$@"; do
  echo ">$region"
  case "$region" in
    chrMISSING:*) ;;
    *)
      pos=${region##*:}
      pos=${pos%%-*}
      if [ $((pos % 2)) -eq 0 ]; then echo "A"; else echo "C"; fi
      ;;
  esac
done
`

func writeStub(t *testing.T, contents string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub external tools require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "samtools")
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestFetch(t *testing.T) {
	e := Engine{
		Samtools:  writeStub(t, stubSamtools),
		FastaRef:  "unused.fa",
		ChunkSize: 2,
		Workers:   3,
	}

	queries := []Query{
		{"1", 100},
		{"1", 101},
		{"1", 100}, // duplicate: must not trigger a second lookup
		{"2", 50},
		{"MISSING", 7},
	}

	bases, errs := e.Fetch(queries)
	if len(errs) != 0 {
		t.Fatalf("unexpected batch errors: %v", errs)
	}

	if got := bases[Query{"1", 100}]; got != 'A' {
		t.Errorf("1:100 = %c", got)
	}
	if got := bases[Query{"1", 101}]; got != 'C' {
		t.Errorf("1:101 = %c", got)
	}
	if got := bases[Query{"2", 50}]; got != 'A' {
		t.Errorf("2:50 = %c", got)
	}
	if _, ok := bases[Query{"MISSING", 7}]; ok {
		t.Error("missing contig should yield no base")
	}
	if len(bases) != 3 {
		t.Errorf("expected 3 resolved positions, got %d", len(bases))
	}
}

func TestFetchBatchFailure(t *testing.T) {
	e := Engine{
		Samtools:  writeStub(t, "#!/bin/sh\necho 'could not load index' >&2\nexit 1\n"),
		FastaRef:  "unused.fa",
		ChunkSize: 10,
		Workers:   2,
	}

	bases, errs := e.Fetch([]Query{{"1", 1}, {"1", 2}})
	if len(bases) != 0 {
		t.Errorf("expected no bases, got %v", bases)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 batch error, got %d", len(errs))
	}
	if errs[0].Size != 2 {
		t.Errorf("expected the failed batch to cover 2 regions, got %d", errs[0].Size)
	}
}

func TestFetchEmpty(t *testing.T) {
	e := Engine{Samtools: "/nonexistent", FastaRef: "unused.fa"}
	bases, errs := e.Fetch(nil)
	if len(bases) != 0 || len(errs) != 0 {
		t.Error("no queries should mean no work and no errors")
	}
}
