// Package legend reads the GWAS formatting legend: one row per trait,
// describing where that lab's summary statistics file lives and which of its
// columns mean what. The legend is maintained in a spreadsheet elsewhere;
// this package consumes its exported delimited form.
package legend

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	gwassumstats "github.com/GMELab/gwas-summary-stats"
)

// Builds the legend knows how to describe.
var KnownBuilds = map[string]bool{
	"hg17": true,
	"hg18": true,
	"hg19": true,
	"hg38": true,
}

// NA marks a legend cell whose mapping is intentionally absent.
const NA = "NA"

// Trait is one row of the formatting legend.
type Trait struct {
	TraitName  string `csv:"trait_name"`
	FilePath   string `csv:"file_path"`
	Delimiter  string `csv:"column_delim"`
	HGVersion  string `csv:"hg_version"`
	EffectIsOR string `csv:"effect_is_OR"`

	// Column names within the raw summary statistics file. NA means the
	// source file has no such column.
	RSID       string `csv:"rsid"`
	Chromosome string `csv:"chr"`
	Position   string `csv:"pos"`
	Ref        string `csv:"ref"`
	Alt        string `csv:"alt"`
	EffectSize string `csv:"effect_size"`
	SE         string `csv:"standard_error"`
	EAF        string `csv:"EAF"`
	PValue     string `csv:"pvalue"`
	PValueHet  string `csv:"pvalue_het"`
	NTotalCol  string `csv:"N_total_column"`
	NCaseCol   string `csv:"N_case_column"`
	NCtrlCol   string `csv:"N_ctrl_column"`

	// Study-wide sample sizes for files that don't carry per-variant counts.
	NTotal string `csv:"N_total"`
	NCase  string `csv:"N_case"`
	NCtrl  string `csv:"N_ctrl"`
}

// Load parses the legend file (TSV, optionally compressed, optionally on
// Google Storage).
func Load(path string, client *storage.Client) ([]Trait, error) {
	r, closer, err := gwassumstats.OpenMaybeCompressed(path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer closer.Close()
	defer r.Close()

	fileBytes, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, pfx.Err(err)
	}

	// Tell gocsv to use tab as the delimiter
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		cr := csv.NewReader(in)
		cr.Comma = '\t'
		cr.LazyQuotes = true
		return cr
	})

	traits := []Trait{}
	if err := gocsv.UnmarshalBytes(fileBytes, &traits); err != nil {
		return nil, pfx.Err(err)
	}

	return traits, nil
}

// Find returns the single legend row for traitName. Zero or multiple matches
// are configuration errors: the legend is expected to describe each trait
// exactly once.
func Find(traits []Trait, traitName string) (Trait, error) {
	var found []Trait
	for _, t := range traits {
		if t.TraitName == traitName {
			found = append(found, t)
		}
	}

	switch len(found) {
	case 0:
		return Trait{}, fmt.Errorf("no rows found in the GWAS formatting legend for trait_name=%s", traitName)
	case 1:
		return found[0], nil
	default:
		return Trait{}, fmt.Errorf("multiple rows found in the GWAS formatting legend for trait_name=%s", traitName)
	}
}

// Validate checks that the legend row is usable before any work is
// dispatched.
func (t Trait) Validate() error {
	required := map[string]string{
		"trait_name":   t.TraitName,
		"file_path":    t.FilePath,
		"column_delim": t.Delimiter,
		"hg_version":   t.HGVersion,
		"effect_is_OR": t.EffectIsOR,
	}
	for name, val := range required {
		if val == "" {
			return fmt.Errorf("column %s is missing in the GWAS formatting legend for trait_name=%s", name, t.TraitName)
		}
	}

	// These four mappings are what make a row a variant; they may never be
	// absent from the source file.
	mustMap := map[string]string{
		"chr": t.Chromosome,
		"pos": t.Position,
		"ref": t.Ref,
		"alt": t.Alt,
	}
	for name, val := range mustMap {
		if val == "" || val == NA || val == "NaN" {
			return fmt.Errorf("column %s is NA in the GWAS formatting legend for trait_name=%s", name, t.TraitName)
		}
	}

	switch t.Delimiter {
	case "\t", "tab", ",", "comma", "space", "auto":
	default:
		return fmt.Errorf("invalid column delimiter %q for trait_name=%s", t.Delimiter, t.TraitName)
	}

	if !KnownBuilds[t.HGVersion] {
		return fmt.Errorf("unknown hg_version %q for trait_name=%s", t.HGVersion, t.TraitName)
	}

	switch t.EffectIsOR {
	case "Y", "N":
	default:
		return fmt.Errorf("effect_is_OR must be Y or N for trait_name=%s, got %q", t.TraitName, t.EffectIsOR)
	}

	return nil
}

// DelimiterRune resolves the legend's delimiter field to the rune the CSV
// reader needs. For "auto" the caller should sniff with
// gwassumstats.DetermineDelimiter instead.
func (t Trait) DelimiterRune() (rune, bool) {
	switch t.Delimiter {
	case "\t", "tab":
		return '\t', true
	case ",", "comma":
		return ',', true
	case "space":
		return ' ', true
	}

	return 0, false
}
