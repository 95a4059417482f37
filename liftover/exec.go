package liftover

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"

	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// ExecLifter runs the UCSC liftOver binary once per batch:
//
//	liftOver input.bed chain.gz mapped.bed unmapped.bed
//
// Each batch gets a private temporary directory that is removed on every
// exit path, success or failure.
type ExecLifter struct {
	// LiftOver is the path to the liftOver binary.
	LiftOver string
	// ChainFile is the build-to-build chain, e.g. hg19ToHg38.over.chain.gz.
	ChainFile string
}

func (e ExecLifter) Lift(batch []Interval) (map[int]Lifted, error) {
	dir, err := os.MkdirTemp("", "liftover-batch-")
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer os.RemoveAll(dir)

	inputBed := filepath.Join(dir, "input.bed")
	mappedBed := filepath.Join(dir, "mapped.bed")
	unmappedBed := filepath.Join(dir, "unmapped.bed")

	if err := writeBed(inputBed, batch); err != nil {
		return nil, pfx.Err(err)
	}

	cmd := exec.Command(e.LiftOver, inputBed, e.ChainFile, mappedBed, unmappedBed)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %v: %s", e.LiftOver, err, strings.TrimSpace(string(out)))
	}

	mapped, err := readMappedBed(mappedBed)
	if err != nil {
		return nil, pfx.Err(err)
	}

	unmapped, err := readUnmappedIDs(unmappedBed)
	if err != nil {
		return nil, pfx.Err(err)
	}

	// An interval the tool reports unmapped must not also be reported
	// mapped; when liftOver is run with -multiple this can happen, and we
	// treat it as ambiguous.
	for id := range unmapped {
		delete(mapped, id)
	}

	return mapped, nil
}

func writeBed(path string, batch []Interval) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, iv := range batch {
		// BED is 0-based half-open; the name column carries the interval ID
		// so results can be correlated after the tool reorders them.
		fmt.Fprintf(bw, "%s\t%d\t%d\t%d\n", chrpos.UCSCName(iv.Chromosome), iv.Position-1, iv.Position, iv.ID)
	}

	return bw.Flush()
}

// readMappedBed parses liftOver's mapped output. An input interval that
// yields more than one output interval is ambiguous and dropped: no
// heuristic is used to pick one.
func readMappedBed(path string) (map[int]Lifted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[int]Lifted)
	ambiguous := make(map[int]bool)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, fmt.Errorf("malformed mapped interval %q", line)
		}

		id, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("malformed interval name %q", fields[3])
		}

		end, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed interval end %q", fields[2])
		}

		if _, seen := out[id]; seen || ambiguous[id] {
			ambiguous[id] = true
			delete(out, id)
			continue
		}

		out[id] = Lifted{
			Chromosome: chrpos.Normalize(fields[0]),
			// For a 1-width interval the BED end is the 1-based position.
			Position: end,
		}
	}

	return out, sc.Err()
}

// readUnmappedIDs parses the unmapped side-channel output, which interleaves
// comment lines explaining each rejection with the rejected intervals.
func readUnmappedIDs(path string) (map[int]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[int]bool)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, fmt.Errorf("malformed unmapped interval %q", line)
		}

		id, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("malformed interval name %q", fields[3])
		}
		out[id] = true
	}

	return out, sc.Err()
}
