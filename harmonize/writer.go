package harmonize

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
)

// Header is the canonical output header; downstream consumers depend on
// these columns in this order.
var Header = []string{
	"rsid",
	"unique_id",
	"chr",
	"pos",
	"ref",
	"alt",
	"effect_size",
	"standard_error",
	"EAF",
	"pvalue",
	"pvalue_het",
	"N_total",
	"N_case",
	"N_ctrl",
	"dbSNP_AF",
	"source_build",
	"source_chr",
	"source_pos",
	"target_build",
	"status",
}

// Writer streams harmonized records as gzip-compressed tab-delimited text.
// It is not safe for concurrent use: the pipeline funnels completed records
// through a single writer to keep the output ordering rule intact.
type Writer struct {
	gz *gzip.Writer
	bw *bufio.Writer
}

// NewWriter wraps w and immediately writes the canonical header, so even a
// zero-record run produces a well-formed file.
func NewWriter(w io.Writer) (*Writer, error) {
	gz := gzip.NewWriter(w)
	bw := bufio.NewWriter(gz)

	if _, err := fmt.Fprintln(bw, strings.Join(Header, "\t")); err != nil {
		return nil, pfx.Err(err)
	}

	return &Writer{gz: gz, bw: bw}, nil
}

// Write emits one record. No record is ever skipped on account of its
// status; unresolved records carry NA fields and their status flag.
func (w *Writer) Write(rec Record) error {
	fields := []string{
		rec.RSID,
		rec.UniqueID,
		rec.Chromosome,
		NullIntFormatter(rec.Position),
		rec.Ref,
		rec.Alt,
		formatFloat(rec.Beta),
		NullFloatFormatter(rec.SE),
		NullFloatFormatter(rec.EAF),
		NullFloatFormatter(rec.PValue),
		NullFloatFormatter(rec.PValueHet),
		NullFloatFormatter(rec.NTotal),
		NullFloatFormatter(rec.NCase),
		NullFloatFormatter(rec.NCtrl),
		NullFloatFormatter(rec.AF),
		rec.SourceBuild,
		rec.SourceChromosome,
		strconv.FormatInt(rec.SourcePosition, 10),
		rec.TargetBuild,
		rec.Status.String(),
	}

	_, err := fmt.Fprintln(w.bw, strings.Join(fields, "\t"))

	return err
}

// Close flushes and closes the compression stream. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return pfx.Err(err)
	}

	return w.gz.Close()
}
