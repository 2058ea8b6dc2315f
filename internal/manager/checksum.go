package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"idgaf/internal/fault"
)

// Checksum returns the hex SHA-256 of the file contents.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.KindNotFound, err, "open for checksum")
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fault.Wrap(fault.KindLoadFailure, err, "hash model file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify compares the file's SHA-256 against want (hex, case-insensitive).
func Verify(path, want string) error {
	got, err := Checksum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fault.New(fault.KindInvalidInput, "checksum mismatch: got %s want %s", got, strings.ToLower(want))
	}
	return nil
}
