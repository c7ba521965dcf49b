package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/daicraft/dai/pkg/models"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a single row for run listings.
type RunSummary struct {
	ID         string
	Crew       string
	Status     models.RunStatus
	StartedAt  string
	FinishedAt string
	Succeeded  int
	Total      int
}

// SaveRun persists a finished run and its per-task outcomes.
func (db *DB) SaveRun(report *models.Report, crew string, cfg models.RunConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO runs
				(id, crew, status, started_at, finished_at, input_tokens, output_tokens, config)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, report.RunID, crew, string(report.Status),
			formatTime(report.StartedAt), formatTime(report.FinishedAt),
			report.InputTokens, report.OutputTokens, string(cfgJSON))
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM task_outcomes WHERE run_id = ?`, report.RunID); err != nil {
			return fmt.Errorf("clear task outcomes: %w", err)
		}

		for _, t := range report.Tasks {
			var errorKind, errorMessage sql.NullString
			if t.Failure != nil {
				errorKind = sql.NullString{String: t.Failure.Kind, Valid: true}
				errorMessage = sql.NullString{String: t.Failure.Message, Valid: true}
			}
			var payload sql.NullString
			if t.Result != nil {
				data, err := json.Marshal(t.Result)
				if err != nil {
					return fmt.Errorf("marshal result for task %s: %w", t.ID, err)
				}
				payload = sql.NullString{String: string(data), Valid: true}
			}

			_, err := tx.Exec(`
				INSERT INTO task_outcomes
					(run_id, task_id, role, status, attempts, error_kind, error_message, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, report.RunID, t.ID, t.Role, string(t.Status), t.Attempts, errorKind, errorMessage, payload)
			if err != nil {
				return fmt.Errorf("insert outcome for task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// LoadRun reconstructs the report for a stored run.
func (db *DB) LoadRun(id string) (*models.Report, error) {
	report := &models.Report{RunID: id}

	var status, startedAt, finishedAt string
	row := db.QueryRow(`
		SELECT status, started_at, finished_at, input_tokens, output_tokens
		FROM runs WHERE id = ?
	`, id)
	err := row.Scan(&status, &startedAt, &finishedAt, &report.InputTokens, &report.OutputTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	report.Status = models.RunStatus(status)
	if report.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if report.FinishedAt, err = parseTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	rows, err := db.Query(`
		SELECT task_id, role, status, attempts, error_kind, error_message, payload
		FROM task_outcomes WHERE run_id = ? ORDER BY rowid
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load outcomes for run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.TaskReport
		var taskStatus string
		var errorKind, errorMessage, payload sql.NullString
		if err := rows.Scan(&t.ID, &t.Role, &taskStatus, &t.Attempts, &errorKind, &errorMessage, &payload); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		t.Status = models.TaskStatus(taskStatus)
		if errorKind.Valid {
			t.Failure = &models.Failure{
				Kind:     errorKind.String,
				Message:  errorMessage.String,
				Attempts: t.Attempts,
			}
		}
		if payload.Valid {
			var result models.Result
			if err := json.Unmarshal([]byte(payload.String), &result); err != nil {
				return nil, fmt.Errorf("unmarshal result for task %s: %w", t.ID, err)
			}
			t.Result = &result
		}
		report.Tasks = append(report.Tasks, t)
	}
	return report, rows.Err()
}

// RunConfigFor returns the stored run configuration for a run.
func (db *DB) RunConfigFor(id string) (models.RunConfig, error) {
	var cfgJSON string
	err := db.QueryRow(`SELECT config FROM runs WHERE id = ?`, id).Scan(&cfgJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunConfig{}, ErrRunNotFound
	}
	if err != nil {
		return models.RunConfig{}, fmt.Errorf("load config for run %s: %w", id, err)
	}

	var cfg models.RunConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return models.RunConfig{}, fmt.Errorf("unmarshal config for run %s: %w", id, err)
	}
	return cfg, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT r.id, r.crew, r.status, r.started_at, r.finished_at,
			COALESCE(SUM(CASE WHEN o.status = 'succeeded' THEN 1 ELSE 0 END), 0),
			COUNT(o.task_id)
		FROM runs r
		LEFT JOIN task_outcomes o ON o.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var status string
		if err := rows.Scan(&s.ID, &s.Crew, &status, &s.StartedAt, &s.FinishedAt, &s.Succeeded, &s.Total); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		s.Status = models.RunStatus(status)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
