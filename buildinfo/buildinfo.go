// Package buildinfo reports which commit a binary was built from, so a
// harmonized output file can always be traced back to the code that produced
// it.
package buildinfo

import (
	"fmt"
	"os"
	"runtime/debug"
)

type Info struct {
	Main       string
	GoVersion  string
	Revision   string
	CommitTime string
	Dirty      bool
}

func (i Info) String() string {
	if i.Revision == "" {
		return fmt.Sprintf("%s (built with %s, no version control information)", i.Main, i.GoVersion)
	}

	dirty := ""
	if i.Dirty {
		dirty = ", with uncommitted changes"
	}

	return fmt.Sprintf("%s built with %s from commit %s (%s%s)", i.Main, i.GoVersion, i.Revision, i.CommitTime, dirty)
}

// Get reads the build metadata the Go toolchain embeds in module-aware
// builds. Binaries built outside a repository yield an Info without revision
// fields.
func Get() Info {
	info := Info{}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	info.Main = bi.Path
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			info.CommitTime = s.Value
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}

	return info
}

// PrintToStderr writes the build description where it will not contaminate
// piped output.
func PrintToStderr() {
	fmt.Fprintln(os.Stderr, Get())
}
