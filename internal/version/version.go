// Package version описывает сборку: значения задаются через -ldflags
// (-X .../internal/version.version=v1.2.3), недостающие берутся из debug.BuildInfo.
package version

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current собирает сведения о текущем бинарнике.
func Current() Build {
	b := Build{Version: version, Commit: commit, Date: date}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = b.fillFrom(info.Settings)
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

func (b Build) fillFrom(settings []debug.BuildSetting) Build {
	for _, s := range settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == "":
			b.Commit = s.Value
		case s.Key == "vcs.time" && b.Date == "":
			b.Date = s.Value
		case s.Key == "vcs.modified" && s.Value == "true" && b.Commit != "":
			b.Commit += "-dirty"
		}
	}
	return b
}

func (b Build) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", b.Version, b.Commit, b.Date)
}

// Fields для стартового лога.
func (b Build) Fields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "built": b.Date}
}
