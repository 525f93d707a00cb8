package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/extract"
	"github.com/beam-cloud/untar/pkg/ustar/ustartest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, entries ...ustartest.Entry) string {
	t.Helper()
	b := ustartest.NewBuilder()
	for _, e := range entries {
		b.Add(e)
	}

	path := filepath.Join(t.TempDir(), "test.tar")
	require.NoError(t, os.WriteFile(path, b.Close(), 0644))
	return path
}

func TestExtract(t *testing.T) {
	archive := writeArchive(t,
		ustartest.Entry{Name: "sub", Typeflag: '5', Mode: 0o755},
		ustartest.Entry{Name: "sub/a.txt", Typeflag: '0', Mode: 0o644, Body: []byte("hello")},
		ustartest.Entry{Name: "sub/b.txt", Linkname: "sub/a.txt", Typeflag: '1'},
		ustartest.Entry{Name: "dev", Typeflag: '3'},
	)
	dest := t.TempDir()

	report, err := Extract(context.Background(), ExtractOptions{Archive: archive, Directory: dest})
	require.NoError(t, err)

	assert.Equal(t, extract.EndMarker, report.End)
	assert.Len(t, report.Outcomes, 4)
	assert.Empty(t, report.Failed())
	assert.Len(t, report.Skipped(), 1)

	data, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestExtractMissingArchive(t *testing.T) {
	_, err := Extract(context.Background(), ExtractOptions{
		Archive:   filepath.Join(t.TempDir(), "missing.tar"),
		Directory: t.TempDir(),
	})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractDestinationLocked(t *testing.T) {
	dest := t.TempDir()
	unlock, err := lockDestination(dest)
	require.NoError(t, err)
	defer unlock()

	archive := writeArchive(t, ustartest.Entry{Name: "a", Typeflag: '0', Mode: 0o644, Body: []byte("a")})
	_, err = Extract(context.Background(), ExtractOptions{Archive: archive, Directory: dest})
	require.ErrorIs(t, err, common.ErrDestinationBusy)
}

func TestExtractLogsOverwrittenEntries(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	archive := writeArchive(t,
		ustartest.Entry{Name: "a.txt", Typeflag: '0', Mode: 0o644, Body: []byte("one")},
		ustartest.Entry{Name: "a.txt", Typeflag: '0', Mode: 0o644, Body: []byte("two")},
		ustartest.Entry{Name: "b.txt", Typeflag: '0', Mode: 0o644, Body: []byte("b")},
	)
	report, err := Extract(context.Background(), ExtractOptions{Archive: archive, Directory: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	assert.Contains(t, buf.String(), `"distinct":2`)
	assert.Contains(t, buf.String(), `"overwritten":1`)
}

func TestLockDestinationRelease(t *testing.T) {
	dest := t.TempDir()
	unlock, err := lockDestination(dest)
	require.NoError(t, err)
	unlock()

	unlock, err = lockDestination(dest)
	require.NoError(t, err)
	unlock()
	unlock()
}

func TestRootCommandMatchesSubcommandsFirst(t *testing.T) {
	cmd, _, err := RootCmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, ListCmd, cmd)

	cmd, _, err = RootCmd.Find([]string{"./list"})
	require.NoError(t, err)
	assert.Equal(t, RootCmd, cmd)

	assert.Contains(t, RootCmd.Long, "untar extract ./list")
}

func TestRootCommandRequiresArchive(t *testing.T) {
	var stderr bytes.Buffer
	RootCmd.SetArgs([]string{})
	RootCmd.SetOut(&stderr)
	RootCmd.SetErr(&stderr)
	defer RootCmd.SetArgs(nil)

	err := RootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestList(t *testing.T) {
	stream := ustartest.NewBuilder().
		Add(ustartest.Entry{Name: "dir", Typeflag: '5', Mode: 0o755}).
		Add(ustartest.Entry{Name: "dir/file.txt", Typeflag: '0', Mode: 0o644, Body: []byte("12345"), Mtime: 0}).
		Add(ustartest.Entry{Name: "dir/link", Linkname: "file.txt", Typeflag: '2', Mode: 0o777}).
		Close()

	var out bytes.Buffer
	require.NoError(t, List(bytes.NewReader(stream), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"dir", "0755", "0", "1970-01-01", "00:00", "dir"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"file", "0644", "5", "1970-01-01", "00:00", "dir/file.txt"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"symlink", "0777", "0", "1970-01-01", "00:00", "dir/link", "->", "file.txt"}, strings.Fields(lines[2]))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("UNTAR_TEST_STRING", "value")
	t.Setenv("UNTAR_TEST_BOOL", "true")
	t.Setenv("UNTAR_TEST_BAD_BOOL", "maybe")

	assert.Equal(t, "value", getEnvString("UNTAR_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnvString("UNTAR_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("UNTAR_TEST_BOOL", false))
	assert.False(t, getEnvBool("UNTAR_TEST_BAD_BOOL", false))
}
