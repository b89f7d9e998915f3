package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)
	assert.Equal(t, "tablesync", AppName)

	short := Short()
	assert.Contains(t, short, Version)
	assert.Contains(t, short, Revision)

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))

	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Contains(t, info.Platform, "/")
}

func TestApplyBuildInfo(t *testing.T) {
	tests := []struct {
		name         string
		version      string
		revision     string
		buildDate    string
		mainVersion  string
		settings     map[string]string
		wantVersion  string
		wantRevision string
		wantDate     string
	}{
		{
			name:        "defaults-from-build-info",
			version:     devVersion,
			revision:    "HEAD",
			mainVersion: "v9.9.9",
			settings: map[string]string{
				"vcs.revision": "abcdef1234567890",
				"vcs.modified": "true",
				"vcs.time":     "2025-12-12T01:00:00Z",
			},
			wantVersion:  "9.9.9",
			wantRevision: "abcdef1234567890-dirty",
			wantDate:     "2025-12-12T01:00:00Z",
		},
		{
			name:         "ldflags-win",
			version:      "1.2.3",
			revision:     "deadbeef",
			buildDate:    "from-ldflags",
			mainVersion:  "v9.9.9",
			settings:     map[string]string{"vcs.revision": "abcdef", "vcs.time": "2025-12-12T01:00:00Z"},
			wantVersion:  "1.2.3",
			wantRevision: "deadbeef",
			wantDate:     "from-ldflags",
		},
		{
			name:         "devel-build",
			version:      devVersion,
			revision:     "HEAD",
			mainVersion:  "(devel)",
			settings:     map[string]string{},
			wantVersion:  devVersion,
			wantRevision: "HEAD",
			wantDate:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
			t.Cleanup(func() {
				Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
			})

			Version, Revision, BuildDate = tt.version, tt.revision, tt.buildDate
			applyBuildInfo(tt.mainVersion, tt.settings)

			assert.Equal(t, tt.wantVersion, Version)
			assert.Equal(t, tt.wantRevision, Revision)
			assert.Equal(t, tt.wantDate, BuildDate)
		})
	}
}
