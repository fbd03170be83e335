package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestWithVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "fedcba9876543210"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	fromVCS := withVCS(Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"}, settings)
	assert.Equal(t, "fedcba9876543210", fromVCS.Commit)
	assert.Equal(t, "2026-10-01T12:00:00Z", fromVCS.BuildTime)
	assert.True(t, fromVCS.Modified)

	fromLdflags := withVCS(Info{Version: "v1.4.0", Commit: "0123456789abcdef", BuildTime: "2026-09-30"}, settings)
	assert.Equal(t, "0123456789abcdef", fromLdflags.Commit)
	assert.Equal(t, "2026-09-30", fromLdflags.BuildTime)
}

func TestUserAgent(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version = "v1.4.0"
	Commit = "0123456789abcdef"

	assert.Equal(t, "gigmarket/v1.4.0 (0123456)", UserAgent())
}
