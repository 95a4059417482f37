// Package refseq fetches reference-genome bases at given positions by
// batching region queries through samtools faidx, so that one process spawn
// serves many variants.
package refseq

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// Query is one 1-based reference position. Chromosome is in the normalized
// (un-prefixed) convention.
type Query struct {
	Chromosome string
	Position   int64
}

// BatchError reports the failure of one faidx invocation. Recoverable: the
// batch's positions stay unresolved and the run continues.
type BatchError struct {
	Batch int
	Size  int
	Err   error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("refseq: batch %d (%d regions): %v", e.Batch, e.Size, e.Err)
}

func (e BatchError) Unwrap() error {
	return e.Err
}

// Engine queries an indexed FASTA through the samtools binary.
type Engine struct {
	// Samtools is the path to the samtools binary.
	Samtools string
	// FastaRef is the path to the reference FASTA; its .fai index must sit
	// beside it.
	FastaRef string
	// ChunkSize caps the number of regions passed to one faidx invocation.
	ChunkSize int
	// Workers bounds the number of concurrent invocations.
	Workers int
}

// Fetch returns the uppercase reference base for each queried position.
// Queries are deduplicated before batching. Positions missing from the index
// (unknown contig, or beyond the contig end) are absent from the result map.
// A base that is not a single A/C/G/T is reported as 'N'.
func (e Engine) Fetch(queries []Query) (map[Query]byte, []BatchError) {
	unique := dedupe(queries)

	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(unique)
	}
	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}

	nBatches := 0
	if len(unique) > 0 {
		nBatches = (len(unique) + chunkSize - 1) / chunkSize
	}

	type job struct {
		batch   int
		queries []Query
	}
	type result struct {
		batch int
		bases map[Query]byte
		err   error
	}

	jobs := make(chan job)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				bases, err := e.fetchBatch(j.queries)
				results <- result{batch: j.batch, bases: bases, err: err}
			}
		}()
	}

	go func() {
		for batch := 0; batch < nBatches; batch++ {
			lo := batch * chunkSize
			hi := lo + chunkSize
			if hi > len(unique) {
				hi = len(unique)
			}
			jobs <- job{batch: batch, queries: unique[lo:hi]}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[Query]byte, len(unique))
	var errs []BatchError
	for res := range results {
		if res.err != nil {
			size := chunkSize
			if res.batch == nBatches-1 {
				size = len(unique) - res.batch*chunkSize
			}
			errs = append(errs, BatchError{Batch: res.batch, Size: size, Err: res.err})
			continue
		}
		for q, b := range res.bases {
			out[q] = b
		}
	}

	return out, errs
}

// fetchBatch issues one faidx call covering every region in the batch and
// parses the multi-record FASTA it prints.
func (e Engine) fetchBatch(queries []Query) (map[Query]byte, error) {
	args := make([]string, 0, len(queries)+2)
	args = append(args, "faidx", e.FastaRef)
	for _, q := range queries {
		args = append(args, Region(q))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(e.Samtools, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s faidx: %v: %s", e.Samtools, err, strings.TrimSpace(stderr.String()))
	}

	return parseFasta(&stdout)
}

// Region renders the samtools region string for a single base.
func Region(q Query) string {
	pos := strconv.FormatInt(q.Position, 10)

	return chrpos.UCSCName(q.Chromosome) + ":" + pos + "-" + pos
}

// parseFasta reads faidx output of the form
//
//	>chr1:100000-100000
//	A
//
// back into a position-to-base mapping. A record with an empty sequence
// (position beyond the contig end) is omitted; a multi-base or non-ACGT
// sequence maps to 'N'.
func parseFasta(r *bytes.Buffer) (map[Query]byte, error) {
	out := make(map[Query]byte)

	var current Query
	var haveCurrent bool
	var seq strings.Builder

	flush := func() {
		if !haveCurrent || seq.Len() == 0 {
			seq.Reset()
			return
		}
		s := strings.ToUpper(seq.String())
		base := byte('N')
		if len(s) == 1 {
			switch s[0] {
			case 'A', 'C', 'G', 'T':
				base = s[0]
			}
		}
		out[current] = base
		seq.Reset()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			q, err := parseRegion(strings.TrimPrefix(line, ">"))
			if err != nil {
				return nil, err
			}
			current, haveCurrent = q, true
			continue
		}
		if !haveCurrent {
			return nil, fmt.Errorf("sequence line %q before any region header", line)
		}
		seq.WriteString(line)
	}
	flush()

	return out, sc.Err()
}

// parseRegion inverts Region: "chr1:100-100" (samtools may echo only the
// first word of the header) back to a Query.
func parseRegion(header string) (Query, error) {
	region := header
	if i := strings.IndexAny(region, " \t"); i >= 0 {
		region = region[:i]
	}

	colon := strings.LastIndex(region, ":")
	if colon < 0 {
		return Query{}, fmt.Errorf("malformed region header %q", header)
	}

	span := region[colon+1:]
	startS := span
	if dash := strings.Index(span, "-"); dash >= 0 {
		startS = span[:dash]
	}

	start, err := strconv.ParseInt(strings.ReplaceAll(startS, ",", ""), 10, 64)
	if err != nil {
		return Query{}, fmt.Errorf("malformed region header %q: %v", header, err)
	}

	return Query{Chromosome: chrpos.Normalize(region[:colon]), Position: start}, nil
}

// dedupe returns the unique queries in deterministic genome order.
func dedupe(queries []Query) []Query {
	seen := make(map[Query]bool, len(queries))
	unique := make([]Query, 0, len(queries))
	for _, q := range queries {
		if seen[q] {
			continue
		}
		seen[q] = true
		unique = append(unique, q)
	}

	sort.Slice(unique, func(i, j int) bool {
		return chrpos.Less(unique[i].Chromosome, unique[i].Position, unique[j].Chromosome, unique[j].Position)
	})

	return unique
}
