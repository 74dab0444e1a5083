// Package updater is the daemon's file-sync engine: it walks the remote
// manifest, downloads entries whose local hash differs, and verifies
// everything it wrote.
package updater

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/infra/config"
	"github.com/kvantos/patchbay/internal/infra/logger"
)

// Progress receives per-entry progress and log lines from the engine.
// *tracker.Tracker satisfies it.
type Progress interface {
	SetProgress(progress, total int)
	Log(message, logType string)
}

type manifestEntry struct {
	Name string
	Hash string
}

type Engine struct {
	cfg      config.PatchConfig
	http     *http.Client
	progress Progress
	log      zerolog.Logger

	// retryBackoff is the initial delay between download attempts; it
	// doubles per retry up to maxBackoff.
	retryBackoff time.Duration
}

func New(cfg config.PatchConfig, progress Progress, client *http.Client) *Engine {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Engine{
		cfg:          cfg,
		http:         client,
		progress:     progress,
		log:          logger.New("updater"),
		retryBackoff: time.Second,
	}
}

// Run executes one full update pass and returns its accounting. Per-file
// failures land in the report; only a failure that prevents the run from
// proceeding at all (unreachable manifest, unwritable target folder) is
// returned as an error.
func (e *Engine) Run(ctx context.Context) (domain.StatusReport, error) {
	report := domain.StatusReport{
		Updated: []string{},
		Skipped: []string{},
		Failed:  []string{},
		Verification: domain.VerificationReport{
			Verified:  []string{},
			Corrupted: []string{},
		},
	}

	if err := os.MkdirAll(e.cfg.TargetFolder, 0755); err != nil {
		return report, fmt.Errorf("failed to create target folder %s: %w", e.cfg.TargetFolder, err)
	}

	lines, err := e.fetchManifest(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch file list: %w", err)
	}

	var toVerify []manifestEntry
	total := len(lines)

	for i, line := range lines {
		name, hash, ok := strings.Cut(line, ",")
		if !ok {
			e.log.Error().Str("entry", line).Msg("invalid file entry format")
			report.Failed = append(report.Failed, line)
			e.progress.SetProgress(i+1, total)
			continue
		}
		name, hash = strings.TrimSpace(name), strings.TrimSpace(hash)

		if err := e.syncFile(ctx, name, hash, &report, &toVerify); err != nil {
			e.log.Error().Err(err).Str("file", name).Msg("file update failed")
			e.progress.Log(fmt.Sprintf("Failed to update %s: %v", name, err), domain.LogError)
			report.Failed = append(report.Failed, name)
		}
		e.progress.SetProgress(i+1, total)
	}

	report.Verification = e.verify(toVerify)

	if err := cleanStaleProgress(e.cfg.TargetFolder, time.Duration(e.cfg.ProgressFileMaxAge)*time.Second); err != nil {
		e.log.Warn().Err(err).Msg("progress file cleanup failed")
	}

	return report, nil
}

// syncFile brings one manifest entry up to date and files it under
// updated or skipped.
func (e *Engine) syncFile(ctx context.Context, name, hash string, report *domain.StatusReport, toVerify *[]manifestEntry) error {
	localPath := filepath.Join(e.cfg.TargetFolder, name)

	needed, err := e.updateNeeded(localPath, hash)
	if err != nil {
		return err
	}
	if !needed {
		e.log.Debug().Str("file", name).Msg("file is up-to-date, skipping")
		report.Skipped = append(report.Skipped, name)
		return nil
	}

	fileURL := e.cfg.ServerURL + name
	size, err := e.remoteSize(ctx, fileURL)
	if err != nil {
		return err
	}

	segments := 1
	if size > e.cfg.MultithreadingThreshold {
		segments = defaultSegments
		e.log.Info().Str("file", name).Int64("size", size).Msg("using segmented download")
	}

	if err := e.download(ctx, fileURL, localPath, hash, size, segments); err != nil {
		return err
	}

	e.log.Info().Str("file", name).Msg("file updated")
	report.Updated = append(report.Updated, name)
	*toVerify = append(*toVerify, manifestEntry{Name: name, Hash: hash})
	return nil
}

// verify re-hashes every updated file against the manifest. It reuses the
// progress channel so the UI sees the verification pass advance.
func (e *Engine) verify(entries []manifestEntry) domain.VerificationReport {
	report := domain.VerificationReport{
		Verified:  []string{},
		Corrupted: []string{},
	}

	for i, entry := range entries {
		localPath := filepath.Join(e.cfg.TargetFolder, entry.Name)
		actual, err := FileHash(localPath)
		if err == nil && actual == entry.Hash {
			e.log.Debug().Str("file", entry.Name).Msg("integrity verified")
			report.Verified = append(report.Verified, entry.Name)
		} else {
			e.log.Error().Str("file", entry.Name).Msg("integrity check failed")
			report.Corrupted = append(report.Corrupted, entry.Name)
		}
		e.progress.SetProgress(i+1, len(entries))
	}
	return report
}

func (e *Engine) updateNeeded(localPath, serverHash string) (bool, error) {
	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		return true, nil
	}
	localHash, err := FileHash(localPath)
	if err != nil {
		return false, err
	}
	return localHash != serverHash, nil
}

func (e *Engine) fetchManifest(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.FileListURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file list request returned %s", resp.Status)
	}

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func (e *Engine) remoteSize(ctx context.Context, fileURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size <= 0 {
		return 0, domain.ErrNoContentLength
	}
	return size, nil
}
