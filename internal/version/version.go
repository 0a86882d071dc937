package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// Info is the build metadata stamped in by ldflags
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

func (i Info) normalized() Info {
	if i.Version == "" {
		i.Version = "dev"
	}
	return i
}

// Short returns "version-commit" with the commit abbreviated to seven
// characters, or just the version when no commit is known
func (i Info) Short() string {
	i = i.normalized()
	if i.Commit == "" {
		return i.Version
	}
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s-%s", i.Version, commit)
}

// Detailed returns the multi-line banner printed by `mchconfig version`
func (i Info) Detailed() string {
	i = i.normalized()
	if i.Commit == "" {
		i.Commit = "unknown"
	}
	if i.BuildTime == "" {
		i.BuildTime = "unknown"
	}

	var gens []string
	for _, g := range imc.Generations() {
		gens = append(gens, g.String())
	}

	return fmt.Sprintf(`mchconfig (Intel memory controller configuration reader)
Version:     %s
Commit:      %s
Built:       %s
Generations: %s
Go version:  %s
OS/Arch:     %s/%s`,
		i.Version, i.Commit, i.BuildTime,
		strings.Join(gens, ", "),
		runtime.Version(),
		runtime.GOOS, runtime.GOARCH)
}
