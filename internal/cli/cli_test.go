package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
	"github.com/eid-tools/dds-hashcode/internal/logger"
)

func TestMain(m *testing.M) {
	appLogger = logger.InitLoggerWithWriter(io.Discard, slog.LevelError, "test")
	os.Exit(m.Run())
}

var testFiles = []struct {
	name    string
	content string
}{
	{"test.txt", "abc"},
	{"docs/notes.txt", "meeting notes"},
}

// writeContainer writes a full form container of the given format to dir/name
func writeContainer(t *testing.T, dir, name string, format container.Format) string {
	t.Helper()
	c, err := container.New(format)
	require.NoError(t, err)
	for _, f := range testFiles {
		_, err := c.Add(f.name, "text/plain", []byte(f.content))
		require.NoError(t, err)
	}
	data, err := container.Serialize(c)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestConvertRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		file   string
		format container.Format
	}{
		{"bdoc", "contract.bdoc", container.FormatBDOC},
		{"ddoc", "contract.ddoc", container.FormatDDOC},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			filesDir := filepath.Join(dir, "contents")
			in := writeContainer(t, dir, tc.file, tc.format)

			c, err := readContainer(in)
			require.NoError(t, err)

			hashcodePath := filepath.Join(dir, "hashcode"+tc.format.Extension())
			hashcode, err := convertContainer(c, formHashcode, filesDir, "sha256", hashcodePath)
			require.NoError(t, err)
			assert.True(t, hashcode.Hashcode)
			for _, df := range hashcode.DataFiles {
				assert.False(t, df.HasContent(), df.Name)
				assert.NotEmpty(t, df.DigestValue, df.Name)
			}

			for _, f := range testFiles {
				body, err := os.ReadFile(filepath.Join(filesDir, filepath.FromSlash(f.name)))
				require.NoError(t, err)
				assert.Equal(t, f.content, string(body))
			}

			full, err := convertContainer(hashcode, formFull, filesDir, "", filepath.Join(dir, "full"+tc.format.Extension()))
			require.NoError(t, err)
			assert.False(t, full.Hashcode)
			for i, f := range testFiles {
				assert.Equal(t, f.content, string(full.DataFiles[i].Content))
			}
		})
	}
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	c, err := readContainer(writeContainer(t, dir, "contract.bdoc", container.FormatBDOC))
	require.NoError(t, err)

	hashcode, err := container.ToHashcodeForm(c)
	require.NoError(t, err)

	t.Run("output extension of another format", func(t *testing.T) {
		_, err := convertContainer(c, formHashcode, "", "sha256", filepath.Join(dir, "out.ddoc"))
		assert.ErrorContains(t, err, "is a DIGIDOC-XML 1.3 file")
	})

	t.Run("unknown target form", func(t *testing.T) {
		_, err := convertContainer(c, "zip", "", "sha256", filepath.Join(dir, "out.bdoc"))
		assert.ErrorContains(t, err, "invalid --to")
	})

	t.Run("full form needs the contents", func(t *testing.T) {
		_, err := convertContainer(hashcode, formFull, "", "", filepath.Join(dir, "out.bdoc"))
		assert.ErrorContains(t, err, "--files is required")
	})

	t.Run("missing data file", func(t *testing.T) {
		empty := t.TempDir()
		_, err := convertContainer(hashcode, formFull, empty, "", filepath.Join(dir, "out.bdoc"))

		var cerr *container.ContainerError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, container.ErrCodeMissingDataFile, cerr.Code())
	})

	t.Run("modified data file", func(t *testing.T) {
		contents := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(contents, "test.txt"), []byte("abd"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(contents, "docs"), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(contents, "docs", "notes.txt"), []byte("meeting notes"), 0o644))

		_, err := convertContainer(hashcode, formFull, contents, "", filepath.Join(dir, "out.bdoc"))

		var cerr *container.ContainerError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, container.ErrCodeDigestMismatch, cerr.Code())
	})
}

func TestDigestDataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	t.Cleanup(func() {
		digestFormat, digestID, digestMimeType, digestAlgorithm, digestName = "bdoc", "D0", "", "sha256", ""
	})

	digestFormat, digestID, digestMimeType, digestAlgorithm = "ddoc", "D0", "text/plain", "sha256"
	df, err := digestDataFile(path)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA1, df.DigestType)
	assert.Equal(t, "VqNUJvqUvw2OmalMsVydxk3PeAo=", df.DigestValue)

	digestFormat, digestAlgorithm = "bdoc", "sha512"
	df, err = digestDataFile(path)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA512, df.DigestType)
	assert.Equal(t, "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", df.Digests[crypto.SHA256])

	digestID = "X1"
	_, err = digestDataFile(path)
	assert.ErrorContains(t, err, "invalid data file identifier")

	digestID, digestAlgorithm = "D0", "sha1"
	_, err = digestDataFile(path)
	assert.ErrorContains(t, err, "unsupported BDOC digest")
}

func TestDetectAndNextIDCommands(t *testing.T) {
	path := writeContainer(t, t.TempDir(), "contract.bdoc", container.FormatBDOC)

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	assert.Equal(t, "D2\n", run("next-id", path))

	text := run("detect", path)
	assert.Contains(t, text, "format:     BDOC 2.1")
	assert.Contains(t, text, "form:       full")
	assert.Contains(t, text, "docs/notes.txt")

	var summary containerSummary
	require.NoError(t, json.Unmarshal([]byte(run("detect", "--json", path)), &summary))
	detectJSON = false

	assert.Equal(t, "contract.bdoc", summary.File)
	assert.Equal(t, container.FormatBDOC, summary.Format)
	assert.False(t, summary.Hashcode)
	assert.Equal(t, 0, summary.Signatures)
	assert.Equal(t, "D2", summary.NextDataFileID)
	require.Len(t, summary.DataFiles, 2)
	assert.Equal(t, "D1", summary.DataFiles[1].ID)
}
