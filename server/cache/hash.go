package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	hashChunkSize = 64 * 1024
	// Hashes are truncated to 16 bytes; collisions at that width are
	// not a practical concern for per-deployment dataset counts.
	hashLength = 16
)

// hashFile streams the file through SHA-256 in fixed-size chunks. The
// whole file is never held in memory.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(digest.Sum(nil))[:hashLength*2], nil
}

// fallbackHash derives a deterministic identity from file metadata when
// the content itself cannot be read.
func fallbackHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	seed := fmt.Sprintf("%d|%d|%s", info.Size(), info.ModTime().UnixNano(), filepath.Base(path))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:hashLength*2], nil
}
