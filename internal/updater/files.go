package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const progressSuffix = ".progress"

// FileHash returns the hex SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func partPath(dest string, part int) string {
	return fmt.Sprintf("%s.part%d", dest, part)
}

// combineParts concatenates dest.part0..partN-1 into dest, removing each
// part once copied.
func combineParts(dest string, parts int) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	for i := 0; i < parts; i++ {
		part := partPath(dest, i)
		in, err := os.Open(part)
		if err != nil {
			return fmt.Errorf("part file missing: %w", err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return err
		}
		os.Remove(part)
	}
	return nil
}

func cleanParts(dest string, parts int) {
	for i := 0; i < parts; i++ {
		os.Remove(partPath(dest, i))
	}
}

// writeProgressFile drops a sidecar marking an in-flight download so an
// interrupted run leaves a visible trace for cleanup.
func writeProgressFile(dest string) error {
	return os.WriteFile(dest+progressSuffix, []byte(time.Now().UTC().Format(time.RFC3339)), 0644)
}

func removeProgressFile(dest string) {
	os.Remove(dest + progressSuffix)
}

// cleanStaleProgress removes .progress sidecars older than maxAge,
// leftovers of runs that never finished.
func cleanStaleProgress(dir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), progressSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
