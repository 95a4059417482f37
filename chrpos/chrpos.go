// Package chrpos normalizes chromosome names and defines the canonical
// chromosome ordering used for the sorted dbSNP merge and for deterministic
// output.
package chrpos

import "strings"

// chromRanks orders the autosomes numerically, then X, Y, and the
// mitochondrial contig. Names not present here sort after all known
// chromosomes, alphabetically.
var chromRanks = map[string]int{
	"1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
	"9": 9, "10": 10, "11": 11, "12": 12, "13": 13, "14": 14, "15": 15,
	"16": 16, "17": 17, "18": 18, "19": 19, "20": 20, "21": 21, "22": 22,
	"X": 23, "Y": 24, "M": 25, "MT": 25,
}

const unknownRank = 1000

// Normalize converts the many ways labs spell a chromosome into our internal
// convention: no "chr" prefix, no leading zeroes, numeric aliases 23/24/25
// rewritten as X/Y/M.
func Normalize(chrom string) string {
	c := strings.TrimPrefix(chrom, "chr")
	c = strings.TrimPrefix(c, "Chr")
	c = strings.TrimPrefix(c, "CHR")

	// Some tools zero-pad: "01", "09"
	if len(c) == 2 && c[0] == '0' {
		c = c[1:]
	}

	switch c {
	case "23":
		return "X"
	case "24":
		return "Y"
	case "25", "MT", "m", "mt":
		return "M"
	case "x":
		return "X"
	case "y":
		return "Y"
	}

	return c
}

// UCSCName renders a normalized chromosome in the chr-prefixed convention
// that chain files and reference FASTAs use.
func UCSCName(chrom string) string {
	if strings.HasPrefix(chrom, "chr") {
		return chrom
	}

	return "chr" + chrom
}

// Rank maps a normalized chromosome name onto an integer preserving the
// canonical order. Unknown contigs all receive the same large rank and are
// disambiguated by name in Less.
func Rank(chrom string) int {
	if r, ok := chromRanks[chrom]; ok {
		return r
	}

	return unknownRank
}

// Less reports whether (chrom1, pos1) sorts before (chrom2, pos2) in the
// canonical genome order.
func Less(chrom1 string, pos1 int64, chrom2 string, pos2 int64) bool {
	if c := Compare(chrom1, chrom2); c != 0 {
		return c < 0
	}

	return pos1 < pos2
}

// Compare orders two normalized chromosome names: -1, 0, or +1.
func Compare(chrom1, chrom2 string) int {
	r1, r2 := Rank(chrom1), Rank(chrom2)
	if r1 != r2 {
		if r1 < r2 {
			return -1
		}
		return 1
	}

	// Same rank: identical known chromosome, or two unknown contigs that we
	// order by name so the result is still deterministic.
	if chrom1 == chrom2 {
		return 0
	}
	if chrom1 < chrom2 {
		return -1
	}

	return 1
}
