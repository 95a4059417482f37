package liftover

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestIdentity(t *testing.T) {
	batch := []Interval{
		{ID: 0, Chromosome: "1", Position: 100},
		{ID: 1, Chromosome: "X", Position: 200},
	}

	lifted, err := Identity{}.Lift(batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(lifted) != 2 {
		t.Fatalf("identity must map every interval, got %d of 2", len(lifted))
	}
	if lifted[0].Position != 100 || lifted[1].Chromosome != "X" {
		t.Errorf("identity changed coordinates: %+v", lifted)
	}
}

// stubLiftOver behaves like the UCSC binary for test purposes: it shifts
// mapped positions by +1000, reports intervals named "1" as unmapped, and
// duplicates intervals named "2" to simulate an ambiguous lift.
const stubLiftOver = `#!/bin/sh
in="$1"; mapped="$3"; unmapped="$4"
: > "$mapped"
: > "$unmapped"
while read -r chr start end name; do
  if [ "$name" = "1" ]; then
    printf '#Deleted in new\n' >> "$unmapped"
    printf '%s\t%s\t%s\t%s\n' "$chr" "$start" "$end" "$name" >> "$unmapped"
  elif [ "$name" = "2" ]; then
    printf '%s\t%s\t%s\t%s\n' "$chr" $((start + 1000)) $((end + 1000)) "$name" >> "$mapped"
    printf '%s\t%s\t%s\t%s\n' "$chr" $((start + 2000)) $((end + 2000)) "$name" >> "$mapped"
  else
    printf '%s\t%s\t%s\t%s\n' "$chr" $((start + 1000)) $((end + 1000)) "$name" >> "$mapped"
  fi
done < "$in"
`

func writeStub(t *testing.T, contents string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub external tools require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "liftOver")
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestExecLifter(t *testing.T) {
	lifter := ExecLifter{LiftOver: writeStub(t, stubLiftOver), ChainFile: "unused.chain.gz"}

	batch := []Interval{
		{ID: 0, Chromosome: "1", Position: 100},
		{ID: 1, Chromosome: "1", Position: 200}, // unmapped
		{ID: 2, Chromosome: "2", Position: 300}, // ambiguous
		{ID: 3, Chromosome: "X", Position: 400},
	}

	lifted, err := lifter.Lift(batch)
	if err != nil {
		t.Fatal(err)
	}

	if got, ok := lifted[0]; !ok || got.Position != 1100 || got.Chromosome != "1" {
		t.Errorf("interval 0: %+v, ok=%v", got, ok)
	}
	if _, ok := lifted[1]; ok {
		t.Error("interval 1 should be unmapped")
	}
	if _, ok := lifted[2]; ok {
		t.Error("ambiguous interval 2 should be treated as unmapped")
	}
	if got, ok := lifted[3]; !ok || got.Position != 1400 {
		t.Errorf("interval 3: %+v, ok=%v", got, ok)
	}
}

func TestExecLifterEmptyOutputs(t *testing.T) {
	// A batch whose intervals all fail still produces both output files,
	// possibly empty.
	lifter := ExecLifter{LiftOver: writeStub(t, "#!/bin/sh\n: > \"$3\"\n: > \"$4\"\n"), ChainFile: "unused"}

	lifted, err := lifter.Lift([]Interval{{ID: 0, Chromosome: "1", Position: 5}})
	if err != nil {
		t.Fatal(err)
	}
	if len(lifted) != 0 {
		t.Errorf("expected no lifted intervals, got %v", lifted)
	}
}

func TestExecLifterFailure(t *testing.T) {
	lifter := ExecLifter{LiftOver: writeStub(t, "#!/bin/sh\necho boom >&2\nexit 3\n"), ChainFile: "unused"}

	if _, err := lifter.Lift([]Interval{{ID: 0, Chromosome: "1", Position: 5}}); err == nil {
		t.Fatal("expected an error from a nonzero exit")
	}
}

type flakyLifter struct{}

func (flakyLifter) Lift(batch []Interval) (map[int]Lifted, error) {
	// Fail any batch containing an interval on chromosome 9; lift the rest
	// in place.
	out := make(map[int]Lifted, len(batch))
	for _, iv := range batch {
		if iv.Chromosome == "9" {
			return nil, errors.New("chain gap")
		}
		out[iv.ID] = Lifted{Chromosome: iv.Chromosome, Position: iv.Position}
	}

	return out, nil
}

func TestCoordinatePartialFailure(t *testing.T) {
	var intervals []Interval
	for i := 0; i < 10; i++ {
		chrom := "1"
		if i >= 8 {
			chrom = "9" // the final batch of 2 will fail
		}
		intervals = append(intervals, Interval{ID: i, Chromosome: chrom, Position: int64(1000 + i)})
	}

	lifted, errs := Coordinate(intervals, flakyLifter{}, 2, 3)

	if len(errs) != 1 {
		t.Fatalf("expected 1 batch error, got %d: %v", len(errs), errs)
	}
	if errs[0].Size != 2 {
		t.Errorf("expected the failed batch to hold 2 intervals, got %d", errs[0].Size)
	}
	if len(lifted) != 8 {
		t.Errorf("expected 8 lifted intervals, got %d", len(lifted))
	}
	for i := 0; i < 8; i++ {
		if _, ok := lifted[i]; !ok {
			t.Errorf("interval %d missing from successful batches", i)
		}
	}
}

func TestCoordinateEmpty(t *testing.T) {
	lifted, errs := Coordinate(nil, Identity{}, 100, 4)
	if len(lifted) != 0 || len(errs) != 0 {
		t.Errorf("empty input should produce empty output, got %v, %v", lifted, errs)
	}
}

func TestBuildsFromChainName(t *testing.T) {
	from, to, err := BuildsFromChainName("/ref/hg19ToHg38.over.chain.gz")
	if err != nil {
		t.Fatal(err)
	}
	if from != "hg19" || to != "hg38" {
		t.Errorf("got %s, %s", from, to)
	}

	if _, _, err := BuildsFromChainName("weird.chain"); err == nil {
		t.Error("expected an error for a nonconforming name")
	}
}
