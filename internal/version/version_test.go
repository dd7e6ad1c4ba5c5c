package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrent_NeverEmpty(t *testing.T) {
	b := Current()

	require.NotEmpty(t, b.Version)
	require.NotEmpty(t, b.Commit)
	require.NotEmpty(t, b.Date)
	require.Equal(t, b.Version, b.Fields()["version"])
	require.Contains(t, b.String(), "commit "+b.Commit)
}

func TestBuild_FillFromVCSSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	got := Build{Version: "dev"}.fillFrom(settings)
	require.Equal(t, Build{Version: "dev", Commit: "abc123-dirty", Date: "2026-03-01T10:00:00Z"}, got)

	pinned := Build{Version: "v1.0.0", Commit: "release", Date: "2026-01-01"}.fillFrom(settings[:2])
	require.Equal(t, "release", pinned.Commit, "ldflags win over build info")
	require.Equal(t, "2026-01-01", pinned.Date)
}
