package gwassumstats

import (
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandHome expands ~ to its proper path, where appropriate.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		usr, err := user.Current()
		if err != nil {
			return path
		}
		path = filepath.Join(usr.HomeDir, (path)[2:])
	}

	return path
}
