package config_test

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/config"
)

func TestDefaultsMatchSpec(t *testing.T) {
	d := config.Default()
	assert.Equal(t, 50, d.Pack.MaxDeltaChainDepth)
	assert.Equal(t, 8, d.Pack.MaxPackCachedReaders)
	assert.Equal(t, 3000, d.Index.RacyThresholdMs)
	assert.Equal(t, config.DiffHistogram, d.Diff.Algorithm)
	assert.False(t, d.Core.Bare)
}

func TestDecodeOverridesOnlySetFields(t *testing.T) {
	src := "[core]\n\tbare = true\n\tworktree = /srv/work\n[pack]\n\tmaxdeltachaindepth = 10\n"
	got, err := config.Decode(strings.NewReader(src), config.Default())
	require.NoError(t, err)

	assert.True(t, got.Core.Bare)
	assert.Equal(t, "/srv/work", got.Core.Worktree)
	assert.Equal(t, 10, got.Pack.MaxDeltaChainDepth)
	// untouched field keeps the default
	assert.Equal(t, 8, got.Pack.MaxPackCachedReaders)
}

func TestDecodeAcceptsGitBooleanVocabulary(t *testing.T) {
	for _, val := range []string{"true", "yes", "on"} {
		src := "[core]\n\tbare = " + val + "\n"
		got, err := config.Decode(strings.NewReader(src), config.Default())
		require.NoError(t, err)
		assert.True(t, got.Core.Bare, "value %q should parse true", val)
	}
	for _, val := range []string{"false", "no", "off"} {
		src := "[core]\n\tbare = " + val + "\n"
		got, err := config.Decode(strings.NewReader(src), config.Default())
		require.NoError(t, err)
		assert.False(t, got.Core.Bare, "value %q should parse false", val)
	}
}

func TestDecodeRejectsUnsupportedFormatVersion(t *testing.T) {
	src := "[core]\n\trepositoryformatversion = 2\n"
	_, err := config.Decode(strings.NewReader(src), config.Default())
	require.Error(t, err)
	var target *config.ErrUnsupportedFormatVersion
	assert.ErrorAs(t, err, &target)
}

func TestDecodeRejectsUnknownDiffAlgorithm(t *testing.T) {
	src := "[diff]\n\talgorithm = patience\n"
	_, err := config.Decode(strings.NewReader(src), config.Default())
	assert.Error(t, err)
}

func TestLoadMissingFilesReturnsDefaults(t *testing.T) {
	got, err := config.Load(memfs.New())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), got)
}

func TestLoadRepoConfigOverridesDefaults(t *testing.T) {
	fs := memfs.New()
	f, err := fs.Create("config")
	require.NoError(t, err)
	_, err = f.Write([]byte("[core]\n\tbare = true\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := config.Load(fs)
	require.NoError(t, err)
	assert.True(t, got.Core.Bare)
}
