// Package pipeline runs the full harmonization flow for one trait: legend
// lookup, parsing, liftover, reference-allele orientation, dbSNP resolution,
// and the compressed deterministic output.
package pipeline

import (
	"fmt"
	"os/exec"
	"strings"

	gwassumstats "github.com/GMELab/gwas-summary-stats"
	"github.com/GMELab/gwas-summary-stats/legend"
)

// Defaults for the batched external stages. Liftover batches are cheap (one
// temp file per batch); faidx batches are capped well below the kernel's
// argument-length limit.
const (
	DefaultLiftoverChunk   = 50000
	DefaultLiftoverWorkers = 4
	DefaultLookupChunk     = 2000
	DefaultLookupWorkers   = 4
)

// ConfigurationError means the run was rejected before any work was
// dispatched. Unlike batch errors, it is always fatal.
type ConfigurationError struct {
	Flag   string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: --%s: %s", e.Flag, e.Reason)
}

// Config holds everything one run needs. All paths except Output may be
// gs:// URLs.
type Config struct {
	// Trait selects the row of the formatting legend to process.
	Trait string
	// Legend is the path to the GWAS formatting legend file.
	Legend string
	// Output is the local path the gzipped result is written to.
	Output string

	// TargetBuild is the genome build of the output coordinates.
	TargetBuild string

	// LiftOver is the path to the UCSC liftOver binary. When empty and the
	// builds differ, the chain file is lifted in-process instead.
	LiftOver string
	// ChainFile is the UCSC chain for source-to-target conversion, named in
	// the oldToNew.over.chain[.gz] convention.
	ChainFile string

	// Samtools is the path to the samtools binary used for faidx lookups.
	Samtools string
	// FastaRef is the target-build reference FASTA; its .fai index must sit
	// beside it.
	FastaRef string

	// DbSNP is the sorted dbSNP-derived reference table.
	DbSNP string

	LiftoverChunk   int
	LiftoverWorkers int
	LookupChunk     int
	LookupWorkers   int
}

// WithDefaults fills unset batching parameters.
func (c Config) WithDefaults() Config {
	if c.LiftoverChunk <= 0 {
		c.LiftoverChunk = DefaultLiftoverChunk
	}
	if c.LiftoverWorkers <= 0 {
		c.LiftoverWorkers = DefaultLiftoverWorkers
	}
	if c.LookupChunk <= 0 {
		c.LookupChunk = DefaultLookupChunk
	}
	if c.LookupWorkers <= 0 {
		c.LookupWorkers = DefaultLookupWorkers
	}

	return c
}

// Validate rejects a misconfigured run up front, so no batches are dispatched
// against binaries or files that cannot work. Checks that depend on the
// trait's legend row (source build, chain file naming) happen in Run once the
// legend has been read.
func (c Config) Validate() error {
	if c.Trait == "" {
		return ConfigurationError{Flag: "trait", Reason: "is required"}
	}
	if c.Legend == "" {
		return ConfigurationError{Flag: "legend", Reason: "is required"}
	}
	if c.Output == "" {
		return ConfigurationError{Flag: "output", Reason: "is required"}
	}
	if strings.HasPrefix(c.Output, "gs://") {
		return ConfigurationError{Flag: "output", Reason: "must be a local path"}
	}

	if !legend.KnownBuilds[c.TargetBuild] {
		return ConfigurationError{Flag: "target-build", Reason: fmt.Sprintf("unknown build %q", c.TargetBuild)}
	}

	if c.Samtools == "" {
		return ConfigurationError{Flag: "samtools", Reason: "is required"}
	}
	if _, err := exec.LookPath(c.Samtools); err != nil {
		return ConfigurationError{Flag: "samtools", Reason: err.Error()}
	}

	if c.FastaRef == "" {
		return ConfigurationError{Flag: "fasta", Reason: "is required"}
	}
	if !gwassumstats.IsGoogleStorage(c.FastaRef) {
		if !gwassumstats.Exists(c.FastaRef) {
			return ConfigurationError{Flag: "fasta", Reason: "file not found"}
		}
		if !gwassumstats.Exists(c.FastaRef + ".fai") {
			return ConfigurationError{Flag: "fasta", Reason: "no .fai index beside the FASTA; run samtools faidx first"}
		}
	}

	if c.DbSNP == "" {
		return ConfigurationError{Flag: "dbsnp", Reason: "is required"}
	}

	if c.LiftOver != "" {
		if _, err := exec.LookPath(c.LiftOver); err != nil {
			return ConfigurationError{Flag: "liftover", Reason: err.Error()}
		}
	}

	return nil
}
