package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
status_labels:
  OPEN: Open
  CLOSED: Closed
subjects:
  math: Mathematics
  reading: Reading
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AndGet(t *testing.T) {
	path := writeSeed(t, seed)
	c, err := Load(path, zerolog.New(os.Stderr))
	require.NoError(t, err)

	label, ok := c.Get("status_labels", "OPEN")
	assert.True(t, ok)
	assert.Equal(t, "Open", label)

	_, ok = c.Get("status_labels", "NOPE")
	assert.False(t, ok)
	_, ok = c.Get("missing_table", "OPEN")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"status_labels", "subjects"}, c.TableNames())
}

func TestReload_SwapsSnapshot(t *testing.T) {
	path := writeSeed(t, seed)
	c, err := Load(path, zerolog.New(os.Stderr))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("subjects:\n  science: Science\n"), 0o644))
	require.NoError(t, c.Reload())

	_, ok := c.Get("status_labels", "OPEN")
	assert.False(t, ok)
	label, ok := c.Get("subjects", "science")
	assert.True(t, ok)
	assert.Equal(t, "Science", label)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.New(os.Stderr))
	require.Error(t, err)
}
