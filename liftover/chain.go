package liftover

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	glo "github.com/carbocation/GLO"
	"github.com/carbocation/pfx"

	gwassumstats "github.com/GMELab/gwas-summary-stats"
	"github.com/GMELab/gwas-summary-stats/chrpos"
)

// ChainLifter lifts in-process from a UCSC chain file, for environments
// where the liftOver binary is not installed. Ambiguous lifts (one interval
// mapping to several target intervals) are reported unmapped, matching the
// external tool's policy here.
type ChainLifter struct {
	liftover *glo.LiftOver
	from     string
	to       string
}

// NewChainLifter loads a chain file whose name follows the UCSC
// oldToNew.over.chain[.gz] convention; the build labels are taken from the
// file name.
func NewChainLifter(chainFile string, client *storage.Client) (*ChainLifter, error) {
	fromRef, toRef, err := BuildsFromChainName(chainFile)
	if err != nil {
		return nil, err
	}

	r, closer, err := gwassumstats.OpenMaybeCompressed(chainFile, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer closer.Close()
	defer r.Close()

	liftover := new(glo.LiftOver)
	liftover.Init()
	liftover.Load(fromRef, toRef, bufio.NewReader(r))

	return &ChainLifter{liftover: liftover, from: fromRef, to: toRef}, nil
}

// BuildsFromChainName extracts the (lowercased) source and target build
// labels from a chain file path like hg19ToHg38.over.chain.gz.
func BuildsFromChainName(chainFile string) (fromRef, toRef string, err error) {
	chunks := strings.Split(strings.Split(filepath.Base(chainFile), ".")[0], "To")
	if len(chunks) != 2 {
		return "", "", fmt.Errorf("expected chain file name format to be oldToNew.over.chain.*, but found: %s", chainFile)
	}

	return strings.ToLower(chunks[0]), strings.ToLower(chunks[1]), nil
}

func (c *ChainLifter) Lift(batch []Interval) (map[int]Lifted, error) {
	out := make(map[int]Lifted, len(batch))
	for _, iv := range batch {
		// Chain intervals are half-open and 0-based, like BED.
		hits := c.liftover.Lift(c.from, c.to, glo.NewChainInterval(chrpos.UCSCName(iv.Chromosome), iv.Position-1, iv.Position))
		if len(hits) != 1 {
			continue
		}
		out[iv.ID] = Lifted{
			Chromosome: chrpos.Normalize(hits[0].Contig),
			Position:   hits[0].Start + 1,
		}
	}

	return out, nil
}
