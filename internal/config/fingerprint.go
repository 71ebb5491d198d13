package config

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
)

const fingerprintSampleSize = 512 * 1024

// Fingerprint samples the head, middle, and tail of path and returns a
// SHA-1 digest of the concatenated samples (the file's size is not
// hashed separately). It
// identifies an input set for log/observability purposes only — it is
// never persisted and never drives incremental-update behavior.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	size := stat.Size()
	hasher := sha1.New()
	buf := make([]byte, fingerprintSampleSize)

	n, _ := f.ReadAt(buf, 0)
	hasher.Write(buf[:n])

	if size > fingerprintSampleSize*3 {
		n, _ = f.ReadAt(buf, (size/2)-(fingerprintSampleSize/2))
		hasher.Write(buf[:n])
	}

	if size > fingerprintSampleSize {
		start := size - fingerprintSampleSize
		if start < 0 {
			start = 0
		}
		n, _ = f.ReadAt(buf, start)
		hasher.Write(buf[:n])
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
