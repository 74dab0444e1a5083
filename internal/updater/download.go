package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// downloadChunkSize is the read granularity; the speed limit sleeps
	// once per chunk.
	downloadChunkSize = 256 * 1024

	defaultSegments = 4
	maxAttempts     = 3
	maxBackoff      = 120 * time.Second
)

// download fetches fileURL into dest and verifies the result against
// wantHash. Failed attempts are retried with exponential backoff.
func (e *Engine) download(ctx context.Context, fileURL, dest, wantHash string, size int64, segments int) error {
	backoff := e.retryBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := e.tryDownload(ctx, fileURL, dest, size, segments)
		if err == nil {
			actual, hashErr := FileHash(dest)
			if hashErr != nil {
				err = hashErr
			} else if actual != wantHash {
				err = fmt.Errorf("checksum mismatch: expected %s, got %s", wantHash, actual)
			} else {
				removeProgressFile(dest)
				return nil
			}
		}

		e.log.Error().Err(err).Str("url", fileURL).Int("attempt", attempt).Msg("download attempt failed")

		if attempt < maxAttempts {
			backoff = min(backoff*2, maxBackoff)
			e.log.Info().Str("url", fileURL).Dur("wait", backoff).Msg("retrying download")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("failed to download after %d attempts: %s", maxAttempts, fileURL)
}

func (e *Engine) tryDownload(ctx context.Context, fileURL, dest string, size int64, segments int) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := writeProgressFile(dest); err != nil {
		return err
	}

	// Scale segment count down for files barely above the threshold so no
	// segment drops below one chunk.
	if segments > 1 && size/int64(segments) < downloadChunkSize {
		segments = 1
	}

	if segments <= 1 {
		if err := e.fetchRange(ctx, fileURL, partPath(dest, 0), 0, size-1); err != nil {
			cleanParts(dest, 1)
			return err
		}
		return combineParts(dest, 1)
	}

	partSize := size / int64(segments)

	var wg sync.WaitGroup
	errs := make([]error, segments)

	for i := 0; i < segments; i++ {
		start := int64(i) * partSize
		end := start + partSize - 1
		if i == segments-1 {
			end = size - 1
		}

		wg.Add(1)
		go func(part int, start, end int64) {
			defer wg.Done()
			errs[part] = e.fetchRange(ctx, fileURL, partPath(dest, part), start, end)
		}(i, start, end)
	}
	wg.Wait()

	for part, err := range errs {
		if err != nil {
			cleanParts(dest, segments)
			return fmt.Errorf("segment %d failed: %w", part, err)
		}
	}

	return combineParts(dest, segments)
}

// fetchRange streams one byte range into a part file, throttled by the
// configured speed limit.
func (e *Engine) fetchRange(ctx context.Context, fileURL, partFile string, start, end int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("range request returned %s", resp.Status)
	}

	f, err := os.Create(partFile)
	if err != nil {
		return err
	}
	defer f.Close()

	throttle := e.throttleInterval()
	buf := make([]byte, downloadChunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return err
			}
			if throttle > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(throttle):
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// throttleInterval converts the KiB/s speed limit into a per-chunk sleep.
func (e *Engine) throttleInterval() time.Duration {
	if e.cfg.DownloadSpeedLimit == 0 {
		return 0
	}
	bytesPerSec := float64(e.cfg.DownloadSpeedLimit * 1024)
	return time.Duration(float64(downloadChunkSize) / bytesPerSec * float64(time.Second))
}
