package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"gopkg.in/guregu/null.v3"

	gwassumstats "github.com/GMELab/gwas-summary-stats"
	"github.com/GMELab/gwas-summary-stats/chrpos"
	"github.com/GMELab/gwas-summary-stats/dbsnp"
	"github.com/GMELab/gwas-summary-stats/harmonize"
	"github.com/GMELab/gwas-summary-stats/legend"
	"github.com/GMELab/gwas-summary-stats/liftover"
	"github.com/GMELab/gwas-summary-stats/refseq"
	"github.com/GMELab/gwas-summary-stats/sumstats"
)

// maxLoggedParseErrors caps per-row log noise; the summary carries the full
// count.
const maxLoggedParseErrors = 10

// Run executes the full harmonization flow for one trait. Batch-level
// failures in the external stages are absorbed into per-record statuses; the
// returned error is reserved for problems that invalidate the whole run.
func Run(cfg Config) (harmonize.Summary, error) {
	cfg = cfg.WithDefaults()
	summary := harmonize.Summary{Trait: cfg.Trait}

	if err := cfg.Validate(); err != nil {
		return summary, err
	}

	var client *storage.Client
	if gwassumstats.IsGoogleStorage(cfg.Legend, cfg.ChainFile, cfg.DbSNP) {
		var err error
		client, err = storage.NewClient(context.Background())
		if err != nil {
			return summary, pfx.Err(err)
		}
	}

	traits, err := legend.Load(cfg.Legend, client)
	if err != nil {
		return summary, pfx.Err(err)
	}
	trait, err := legend.Find(traits, cfg.Trait)
	if err != nil {
		return summary, err
	}
	if err := trait.Validate(); err != nil {
		return summary, err
	}

	if client == nil && gwassumstats.IsGoogleStorage(trait.FilePath) {
		client, err = storage.NewClient(context.Background())
		if err != nil {
			return summary, pfx.Err(err)
		}
	}

	lifter, err := lifterFor(cfg, trait, client)
	if err != nil {
		return summary, err
	}

	layout := sumstats.LayoutFromLegend(trait)
	records, err := parse(trait, layout, client, &summary)
	if err != nil {
		return summary, err
	}
	log.Printf("Parsed %d of %d data rows from %s", summary.ParsedRows, summary.RawRows, trait.FilePath)

	statuses := liftRecords(records, lifter, cfg, &summary)
	orientRecords(records, statuses, cfg, &summary)

	rsids := make([]string, len(records))
	afs := make([]null.Float, len(records))
	if err := resolveRecords(records, statuses, rsids, afs, cfg, client, &summary); err != nil {
		return summary, err
	}

	out := assemble(records, statuses, rsids, afs, trait, cfg)
	harmonize.Sort(out)

	if err := write(cfg.Output, out); err != nil {
		return summary, err
	}

	for _, rec := range out {
		summary.Count(rec.Status)
	}
	if summary.Written() != summary.ParsedRows {
		return summary, fmt.Errorf("wrote %d records for %d parsed rows", summary.Written(), summary.ParsedRows)
	}

	summary.Finalize(out)
	warnOnEffectScale(layout, records, summary)
	summary.Log()

	return summary, nil
}

// parse streams the raw summary statistics file into normalized records.
// Individual bad rows are counted and dropped; a file where every row fails
// is treated as a misconfigured legend mapping and aborts the run.
func parse(trait legend.Trait, layout sumstats.Layout, client *storage.Client, summary *harmonize.Summary) ([]sumstats.Record, error) {
	if layout.Delimiter == 0 {
		delim, err := sniffDelimiter(trait.FilePath, client)
		if err != nil {
			return nil, err
		}
		layout.Delimiter = delim
	}

	r, closer, err := gwassumstats.OpenMaybeCompressed(trait.FilePath, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer closer.Close()
	defer r.Close()

	rd, err := sumstats.NewReader(r, layout)
	if err != nil {
		return nil, err
	}

	var records []sumstats.Record
	logged := 0
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, isRowError := err.(sumstats.ParseError); !isRowError {
				return nil, err
			}
			summary.RawRows++
			summary.ParseErrors++
			if logged < maxLoggedParseErrors {
				log.Println(err.Error())
				logged++
			}
			continue
		}
		summary.RawRows++
		records = append(records, rec)
	}
	summary.ParsedRows = len(records)

	if summary.RawRows > 0 && summary.ParsedRows == 0 {
		return nil, fmt.Errorf("all %d data rows of %s were rejected for trait %s; the legend mapping is likely wrong", summary.RawRows, trait.FilePath, trait.TraitName)
	}

	return records, nil
}

// sniffDelimiter is used when the legend declares the delimiter "auto".
func sniffDelimiter(path string, client *storage.Client) (rune, error) {
	r, closer, err := gwassumstats.OpenMaybeCompressed(path, client)
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer closer.Close()
	defer r.Close()

	return gwassumstats.DetermineDelimiter(r), nil
}

// lifterFor picks the coordinate converter: an identity pass-through when no
// build change is needed, the UCSC liftOver binary when one is configured,
// and the in-process chain lifter otherwise. The chain file name must agree
// with the builds it is asked to convert between.
func lifterFor(cfg Config, trait legend.Trait, client *storage.Client) (liftover.Lifter, error) {
	if trait.HGVersion == cfg.TargetBuild {
		return liftover.Identity{}, nil
	}

	if cfg.ChainFile == "" {
		return nil, ConfigurationError{Flag: "chain", Reason: fmt.Sprintf("required to lift %s to %s", trait.HGVersion, cfg.TargetBuild)}
	}
	from, to, err := liftover.BuildsFromChainName(cfg.ChainFile)
	if err != nil {
		return nil, ConfigurationError{Flag: "chain", Reason: err.Error()}
	}
	if from != trait.HGVersion || to != cfg.TargetBuild {
		return nil, ConfigurationError{
			Flag:   "chain",
			Reason: fmt.Sprintf("converts %s to %s, but this run needs %s to %s", from, to, trait.HGVersion, cfg.TargetBuild),
		}
	}

	// The external binary reads the chain itself, so it needs a local file.
	if cfg.LiftOver != "" && !gwassumstats.IsGoogleStorage(cfg.ChainFile) {
		return liftover.ExecLifter{LiftOver: cfg.LiftOver, ChainFile: gwassumstats.ExpandHome(cfg.ChainFile)}, nil
	}

	return liftover.NewChainLifter(cfg.ChainFile, client)
}

// liftRecords converts every record to the target build and assigns the
// provisional per-record statuses: unmapped records are final, mapped records
// start as novel until dbSNP says otherwise.
func liftRecords(records []sumstats.Record, lifter liftover.Lifter, cfg Config, summary *harmonize.Summary) []harmonize.Status {
	intervals := make([]liftover.Interval, len(records))
	for i, rec := range records {
		intervals[i] = liftover.Interval{ID: i, Chromosome: rec.Chromosome, Position: rec.Position}
	}

	lifted, errs := liftover.Coordinate(intervals, lifter, cfg.LiftoverChunk, cfg.LiftoverWorkers)
	for _, be := range errs {
		log.Println(be.Error())
	}
	summary.LiftoverBatchErrors = len(errs)

	// Even a run where every batch fails completes: all records come out
	// unmapped and the degradation is visible in the summary.
	if nBatches := (len(records) + cfg.LiftoverChunk - 1) / cfg.LiftoverChunk; len(errs) > 0 && len(errs) == nBatches {
		log.Printf("Warning: all %d liftover batches failed; every record will be emitted as unmapped", nBatches)
	}

	statuses := make([]harmonize.Status, len(records))
	for i := range records {
		lv, ok := lifted[i]
		if !ok {
			statuses[i] = harmonize.StatusUnmappedLiftover
			continue
		}
		records[i].LiftedChromosome = null.StringFrom(lv.Chromosome)
		records[i].LiftedPosition = null.IntFrom(lv.Position)
		statuses[i] = harmonize.StatusNovelVariant
	}

	return statuses
}

// orientRecords checks every mapped record's stated reference allele against
// the reference genome. Strand-flipped records have both alleles complemented
// in place; records that match neither way are flagged and take no further
// part in dbSNP resolution.
func orientRecords(records []sumstats.Record, statuses []harmonize.Status, cfg Config, summary *harmonize.Summary) {
	queries := make([]refseq.Query, 0, len(records))
	for i, rec := range records {
		if statuses[i] != harmonize.StatusUnmappedLiftover {
			queries = append(queries, refseq.Query{Chromosome: rec.LiftedChromosome.String, Position: rec.LiftedPosition.Int64})
		}
	}

	engine := refseq.Engine{Samtools: cfg.Samtools, FastaRef: cfg.FastaRef, ChunkSize: cfg.LookupChunk, Workers: cfg.LookupWorkers}
	bases, errs := engine.Fetch(queries)
	for _, be := range errs {
		log.Println(be.Error())
	}
	summary.LookupBatchErrors = len(errs)

	flips := 0
	for i := range records {
		if statuses[i] == harmonize.StatusUnmappedLiftover {
			continue
		}
		rec := &records[i]
		base, have := bases[refseq.Query{Chromosome: rec.LiftedChromosome.String, Position: rec.LiftedPosition.Int64}]
		switch harmonize.Orient(rec.Ref, base, have) {
		case harmonize.OrientKeep:
		case harmonize.OrientFlipStrand:
			// Complementing both alleles keeps the effect pointing at the
			// same allele, so beta and EAF are untouched.
			rec.Ref = harmonize.ComplementAllele(rec.Ref)
			rec.Alt = harmonize.ComplementAllele(rec.Alt)
			flips++
		case harmonize.OrientMismatch:
			statuses[i] = harmonize.StatusAlleleMismatch
		}
	}
	if flips > 0 {
		log.Printf("Strand-flipped %d records whose alleles were reported on the opposite strand", flips)
	}
}

// resolveRecords joins the surviving records against the dbSNP table. A
// flipped match means the source file stated the alleles in the reverse of
// dbSNP's orientation: the alleles are swapped, the effect negated, and the
// effect allele frequency complemented, so every resolved record agrees with
// dbSNP on which allele is alt.
func resolveRecords(records []sumstats.Record, statuses []harmonize.Status, rsids []string, afs []null.Float, cfg Config, client *storage.Client, summary *harmonize.Summary) error {
	sites := make([]dbsnp.Site, 0, len(records))
	for i, rec := range records {
		if statuses[i] != harmonize.StatusNovelVariant {
			continue
		}
		sites = append(sites, dbsnp.Site{
			ID:         i,
			Chromosome: rec.LiftedChromosome.String,
			Position:   rec.LiftedPosition.Int64,
			Ref:        rec.Ref,
			Alt:        rec.Alt,
		})
	}
	sort.Slice(sites, func(i, j int) bool {
		return chrpos.Less(sites[i].Chromosome, sites[i].Position, sites[j].Chromosome, sites[j].Position)
	})

	table, closer, err := dbsnp.Open(cfg.DbSNP, cfg.TargetBuild, client)
	if err != nil {
		return pfx.Err(err)
	}
	defer closer.Close()

	matches, err := table.Join(sites)
	if err != nil {
		return pfx.Err(err)
	}
	summary.DbSNPSkippedLines = table.Skipped
	if table.Skipped > 0 {
		log.Printf("Skipped %d malformed or out-of-order lines in %s", table.Skipped, cfg.DbSNP)
	}

	for id, m := range matches {
		if m.Ambiguous {
			statuses[id] = harmonize.StatusAmbiguousMatch
			continue
		}
		statuses[id] = harmonize.StatusResolved
		rsids[id] = m.Entry.RSID
		afs[id] = m.Entry.AF
		if m.Flipped {
			rec := &records[id]
			rec.Ref, rec.Alt = rec.Alt, rec.Ref
			rec.Beta = -rec.Beta
			if rec.EAF.Valid {
				rec.EAF = null.FloatFrom(1 - rec.EAF.Float64)
			}
		}
	}

	return nil
}

// assemble produces the output record for every parsed row. Nothing is
// dropped here: unresolved rows carry their status and NA fields.
func assemble(records []sumstats.Record, statuses []harmonize.Status, rsids []string, afs []null.Float, trait legend.Trait, cfg Config) []harmonize.Record {
	out := make([]harmonize.Record, len(records))
	for i, rec := range records {
		hr := harmonize.Record{
			RSID:             rsids[i],
			UniqueID:         rec.UniqueID(),
			Ref:              rec.Ref,
			Alt:              rec.Alt,
			Beta:             rec.Beta,
			SE:               rec.SE,
			EAF:              rec.EAF,
			PValue:           rec.PValue,
			PValueHet:        rec.PValueHet,
			NTotal:           rec.NTotal,
			NCase:            rec.NCase,
			NCtrl:            rec.NCtrl,
			AF:               afs[i],
			SourceBuild:      trait.HGVersion,
			SourceChromosome: rec.Chromosome,
			SourcePosition:   rec.Position,
			TargetBuild:      cfg.TargetBuild,
			Status:           statuses[i],
		}

		if rec.Mapped() {
			hr.Chromosome = rec.LiftedChromosome.String
			hr.Position = rec.LiftedPosition
		} else {
			// No target-build coordinate exists; the source chromosome keeps
			// the record sortable and addressable.
			hr.Chromosome = rec.Chromosome
		}

		out[i] = hr
	}

	return out
}

func write(path string, recs []harmonize.Record) error {
	f, err := os.Create(gwassumstats.ExpandHome(path))
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	w, err := harmonize.NewWriter(f)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			return pfx.Err(err)
		}
	}

	if err := w.Close(); err != nil {
		return pfx.Err(err)
	}

	return f.Close()
}

// warnOnEffectScale flags the two common legend mistakes around effect_is_OR:
// log-scale effects that look like untransformed ratios, and ratio columns
// mislabeled as betas.
func warnOnEffectScale(layout sumstats.Layout, records []sumstats.Record, summary harmonize.Summary) {
	if layout.EffectIsOR && summary.MedianAbsEffect.Valid && summary.MedianAbsEffect.Float64 > 2 {
		log.Printf("Warning: median |effect| is %.3g after log conversion; the source column may already be on the log scale", summary.MedianAbsEffect.Float64)
	}

	if !layout.EffectIsOR && len(records) >= 100 {
		negatives := 0
		for _, rec := range records {
			if rec.Beta < 0 {
				negatives++
			}
		}
		if negatives == 0 {
			log.Printf("Warning: every effect estimate is positive; the effect column may contain odds ratios despite effect_is_OR=N")
		}
	}
}
