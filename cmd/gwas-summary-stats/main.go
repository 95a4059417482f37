// gwas-summary-stats harmonizes one trait's raw GWAS summary statistics file
// into the canonical schema: target-build coordinates, reference-oriented
// alleles, canonical rsIDs, and dbSNP allele frequencies.
package main

import (
	"flag"
	"log"
	"os"

	_ "github.com/GMELab/gwas-summary-stats/buildinfo/autoprint"
	"github.com/GMELab/gwas-summary-stats/pipeline"
)

func main() {
	var cfg pipeline.Config

	flag.StringVar(&cfg.Trait, "trait", "", "Name of the trait to process, as listed in the formatting legend.")
	flag.StringVar(&cfg.Legend, "legend", "", "Path to the GWAS formatting legend (local or gs://).")
	flag.StringVar(&cfg.Output, "output", "", "Local path for the gzipped harmonized output.")
	flag.StringVar(&cfg.TargetBuild, "target-build", "hg38", "Genome build of the output coordinates.")
	flag.StringVar(&cfg.LiftOver, "liftover", "", "Path to the UCSC liftOver binary. If unset and the builds differ, the chain file is applied in-process.")
	flag.StringVar(&cfg.ChainFile, "chain", "", "UCSC chain file for source-to-target conversion (oldToNew.over.chain[.gz]).")
	flag.StringVar(&cfg.Samtools, "samtools", "samtools", "Path to the samtools binary.")
	flag.StringVar(&cfg.FastaRef, "fasta", "", "Target-build reference FASTA, indexed with samtools faidx.")
	flag.StringVar(&cfg.DbSNP, "dbsnp", "", "Sorted dbSNP-derived reference table (local or gs://).")
	flag.IntVar(&cfg.LiftoverChunk, "liftover-chunk", pipeline.DefaultLiftoverChunk, "Intervals per liftover batch.")
	flag.IntVar(&cfg.LiftoverWorkers, "liftover-workers", pipeline.DefaultLiftoverWorkers, "Concurrent liftover batches.")
	flag.IntVar(&cfg.LookupChunk, "lookup-chunk", pipeline.DefaultLookupChunk, "Regions per samtools faidx batch.")
	flag.IntVar(&cfg.LookupWorkers, "lookup-workers", pipeline.DefaultLookupWorkers, "Concurrent faidx batches.")
	flag.Parse()

	summary, err := pipeline.Run(cfg)
	if err != nil {
		if _, isConfig := err.(pipeline.ConfigurationError); isConfig {
			log.Println(err)
			flag.PrintDefaults()
			os.Exit(1)
		}
		log.Fatalln(err)
	}

	log.Printf("Wrote %d records to %s", summary.Written(), cfg.Output)
}
