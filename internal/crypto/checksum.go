// this file contains functions to calculate the digest of files on disk.
//
// BDOC data files added to a signing session are hashed from disk and their stored copy is verified
// with VerifyFileDigest. DDOC data files are read into memory since the canonical DataFile element embeds the body.

package crypto

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// DigestFile calculates the digest of a file and returns the raw digest
func DigestFile(alg Algorithm, path string) ([]byte, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, WrapInternalError(err, fmt.Sprintf("failed to open directory %s", filepath.Dir(path)))
	}
	defer root.Close()

	file, err := root.Open(filepath.Base(path))
	if err != nil {
		return nil, WrapInternalError(err, "failed to open file")
	}
	defer file.Close()

	return DigestReader(alg, file)
}

// DigestFileBase64 calculates the digest of a file and returns it base64 encoded
func DigestFileBase64(alg Algorithm, path string) (string, error) {
	sum, err := DigestFile(alg, path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// VerifyFileDigest verifies that a file matches the expected base64 encoded digest
func VerifyFileDigest(alg Algorithm, path string, expected string) (bool, error) {
	got, err := DigestFileBase64(alg, path)
	if err != nil {
		return false, err
	}
	return got == expected, nil
}
