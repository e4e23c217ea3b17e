package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressFileRoundTrip(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("frame:0123456789;", 4096)
	path := filepath.Join(t.TempDir(), "session.bin")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	compressed, err := CompressFile(path, LevelDefault)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	var out bytes.Buffer
	require.NoError(t, Decompress(&out, bytes.NewReader(compressed)))
	assert.Equal(t, payload, out.String())
}

func TestCompressFileMissing(t *testing.T) {
	t.Parallel()
	_, err := CompressFile(filepath.Join(t.TempDir(), "nope.bin"), LevelFastest)
	require.Error(t, err)
}

func TestCompressionLevels(t *testing.T) {
	t.Parallel()
	for _, l := range []CompressionLevel{LevelFastest, LevelDefault, LevelBetter, LevelBest, CompressionLevel("bogus")} {
		assert.NotZero(t, l.ToZstdLevel())
	}
}
