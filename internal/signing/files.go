package signing

// files.go - the session upload directory.
//
// Layout: <upload dir>/<sesscode>/<container filename> and <upload dir>/<sesscode>/datafiles/<data file name>.
// Data file names come from uploaded containers and may contain directories (BDOC); they are written through
// an os.Root so a name cannot escape the session directory.

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eid-tools/dds-hashcode/internal/container"
	"github.com/eid-tools/dds-hashcode/internal/crypto"
)

const dataFilesDir = "datafiles"

func (s *Service) sessionDir(sesscode int64) string {
	return filepath.Join(s.uploadDir, strconv.FormatInt(sesscode, 10))
}

// prepareUploadDir creates an empty session directory with the original container and the data file bodies
func (s *Service) prepareUploadDir(sess *SigningSession, containerData []byte, dataFiles []container.DataFile) error {
	if _, err := os.Stat(sess.UploadDir); err == nil {
		s.sessionLogger(sess).Warn("removing stale upload directory", slog.String("dir", sess.UploadDir))
		if err := os.RemoveAll(sess.UploadDir); err != nil {
			return WrapInternalError(err, "failed to remove stale upload directory")
		}
	}
	if err := os.MkdirAll(filepath.Join(sess.UploadDir, dataFilesDir), 0o750); err != nil {
		return WrapInternalError(err, "failed to create upload directory")
	}

	root, err := os.OpenRoot(sess.UploadDir)
	if err != nil {
		return WrapInternalError(err, "failed to open upload directory")
	}
	defer root.Close()

	if containerData != nil {
		if err := root.WriteFile(sess.ContainerFilename, containerData, 0o640); err != nil {
			return WrapInternalError(err, "failed to write container")
		}
	}
	for _, df := range dataFiles {
		if err := writeDataFile(root, df.Name, df.Content); err != nil {
			return err
		}
	}
	return nil
}

func writeDataFile(root *os.Root, name string, content []byte) error {
	p := filepath.Join(dataFilesDir, filepath.FromSlash(name))
	if err := root.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return WrapValidationError(err, fmt.Sprintf("invalid data file name %q", name))
	}
	if err := root.WriteFile(p, content, 0o640); err != nil {
		return WrapValidationError(err, fmt.Sprintf("failed to store data file %q", name))
	}
	return nil
}

// storeDataFile keeps the body of a data file added to the session
func (s *Service) storeDataFile(sess *SigningSession, name string, content []byte) error {
	root, err := os.OpenRoot(sess.UploadDir)
	if err != nil {
		return WrapInternalError(err, "failed to open upload directory")
	}
	defer root.Close()
	return writeDataFile(root, name, content)
}

// copyDataFile streams the file at src into the session directory and checks the stored copy against df
func (s *Service) copyDataFile(sess *SigningSession, df container.DataFile, src string) error {
	in, err := os.Open(src) // #nosec G304 -- path is a file written by this service
	if err != nil {
		return WrapValidationError(err, "failed to open data file")
	}
	defer in.Close()

	root, err := os.OpenRoot(sess.UploadDir)
	if err != nil {
		return WrapInternalError(err, "failed to open upload directory")
	}
	defer root.Close()

	p := filepath.Join(dataFilesDir, filepath.FromSlash(df.Name))
	if err := root.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return WrapValidationError(err, fmt.Sprintf("invalid data file name %q", df.Name))
	}
	out, err := root.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return WrapValidationError(err, fmt.Sprintf("failed to store data file %q", df.Name))
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return WrapInternalError(err, fmt.Sprintf("failed to store data file %q", df.Name))
	}
	if err := out.Close(); err != nil {
		return WrapInternalError(err, fmt.Sprintf("failed to store data file %q", df.Name))
	}

	// the source may have changed after it was hashed
	ok, err := crypto.VerifyFileDigest(df.DigestType, filepath.Join(sess.UploadDir, p), df.DigestValue)
	if err != nil {
		return WrapInternalError(err, fmt.Sprintf("failed to verify stored data file %q", df.Name))
	}
	if !ok {
		_ = root.Remove(p)
		return NewValidationError(fmt.Sprintf("data file %q changed while it was added", df.Name))
	}
	return nil
}

// loadDataFiles reads the stored bodies of the session data files. Missing bodies are left out.
func (s *Service) loadDataFiles(sess *SigningSession) (map[string][]byte, error) {
	root, err := os.OpenRoot(sess.UploadDir)
	if err != nil {
		return nil, WrapInternalError(err, "failed to open upload directory")
	}
	defer root.Close()

	files := make(map[string][]byte, len(sess.DataFiles))
	for _, df := range sess.DataFiles {
		data, err := root.ReadFile(filepath.Join(dataFilesDir, filepath.FromSlash(df.Name)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, WrapInternalError(err, fmt.Sprintf("failed to read data file %q", df.Name))
		}
		files[df.Name] = data
	}
	return files, nil
}

// removeUploadDir deletes the session directory. Failures are logged.
func (s *Service) removeUploadDir(sess *SigningSession) {
	if sess.UploadDir == "" {
		return
	}
	rel, err := filepath.Rel(s.uploadDir, sess.UploadDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		s.sessionLogger(sess).Warn("upload directory is outside the upload root, not removed",
			slog.String("dir", sess.UploadDir))
		return
	}
	if err := os.RemoveAll(sess.UploadDir); err != nil {
		s.sessionLogger(sess).Warn("failed to remove upload directory",
			slog.String("dir", sess.UploadDir),
			slog.String("error", err.Error()),
		)
	}
}

// writeFileAtomic writes data to dir/name through a temporary file and a rename
func writeFileAtomic(dir, name string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	return path, nil
}
