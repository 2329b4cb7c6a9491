package filemode_test

import (
	"testing"

	"github.com/opengit/engine/plumbing/filemode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOctalRoundTrip(t *testing.T) {
	for _, m := range []filemode.FileMode{filemode.Regular, filemode.Executable, filemode.Symlink, filemode.Dir, filemode.Submodule} {
		parsed, err := filemode.ParseOctal(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
		assert.True(t, m.IsValid())
	}
}

func TestIsValidRejectsUnknown(t *testing.T) {
	assert.False(t, filemode.FileMode(0o100666).IsValid())
}

func TestIsTree(t *testing.T) {
	assert.True(t, filemode.Dir.IsTree())
	assert.False(t, filemode.Regular.IsTree())
}
