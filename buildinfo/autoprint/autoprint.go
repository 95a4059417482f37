// Package autoprint is imported for its side effect: every binary that blank
// imports it announces its build provenance on stderr at startup.
package autoprint

import "github.com/GMELab/gwas-summary-stats/buildinfo"

func init() {
	buildinfo.PrintToStderr()
}
