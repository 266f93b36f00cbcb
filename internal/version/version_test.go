package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestShort(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"release", "v1.2.3", "abcdef0123", "v1.2.3 (abcdef0)"},
		{"dev with commit", "dev-abcdef0", "abcdef0123", "dev-abcdef0"},
		{"short commit", "v1.0.0", "abc", "v1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildVars(t, tt.version, tt.commit, "unknown")
			assert.Equal(t, tt.want, Short())
		})
	}
}

func TestGet(t *testing.T) {
	withBuildVars(t, "v2.0.0", "0123456789", "2024-03-01T10:00:00Z")

	info := Get()
	assert.Equal(t, "v2.0.0", info.Version)
	assert.Equal(t, "0123456789", info.Commit)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Contains(t, info.String(), "Built: 2024-03-01T10:00:00Z")
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.False(t, parseBuildTime("2024-03-01 10:00:00").IsZero())
}
