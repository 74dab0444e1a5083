package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kvantos/patchbay/internal/domain"
)

// UpdateRun is one row of update history.
type UpdateRun struct {
	ID         string               `json:"id"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
	Updated    int                  `json:"updated"`
	Skipped    int                  `json:"skipped"`
	Failed     int                  `json:"failed"`
	Error      string               `json:"error,omitempty"`
	Report     *domain.StatusReport `json:"report,omitempty"`
}

// BeginRun records that a run started. IDs are KSUIDs, so lexical order is
// chronological order.
func (s *Store) BeginRun(id string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO update_runs (id, started_at) VALUES (?, ?)`,
		id, startedAt.UTC(),
	)
	return err
}

// FinishRun records the outcome of a run. Exactly one of report or errMsg
// is expected to be meaningful, but storing both is harmless.
func (s *Store) FinishRun(id string, report *domain.StatusReport, errMsg string) error {
	var reportJSON sql.NullString
	var updated, skipped, failed int

	if report != nil {
		buf, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		reportJSON = sql.NullString{String: string(buf), Valid: true}
		updated, skipped, failed = len(report.Updated), len(report.Skipped), len(report.Failed)
	}

	_, err := s.db.Exec(
		`UPDATE update_runs
         SET finished_at = ?, updated_count = ?, skipped_count = ?, failed_count = ?, error = ?, report = ?
         WHERE id = ?`,
		time.Now().UTC(), updated, skipped, failed, errMsg, reportJSON, id,
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*UpdateRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, updated_count, skipped_count, failed_count, error, report
         FROM update_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*UpdateRun
	for rows.Next() {
		run := &UpdateRun{}
		var finished sql.NullTime
		var reportJSON sql.NullString

		if err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Updated,
			&run.Skipped, &run.Failed, &run.Error, &reportJSON); err != nil {
			return nil, err
		}

		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		if reportJSON.Valid {
			var report domain.StatusReport
			if err := json.Unmarshal([]byte(reportJSON.String), &report); err == nil {
				run.Report = &report
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
