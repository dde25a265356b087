package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/video"
)

// Index persists job records so terminal jobs survive restarts. The
// in-memory Store stays authoritative while the process runs.
type Index interface {
	SaveJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, id string) error
	ListTerminalJobs(ctx context.Context) ([]Job, error)
}

// SettingsStore holds small key/value settings such as the API token.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveJob(ctx context.Context, j Job) error {
	configJSON, err := json.Marshal(j.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var resultJSON sql.NullString
	if j.Result != nil {
		b, err := json.Marshal(j.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, state, stage, scene, total_scenes, fraction, error, error_kind,
			artifact_key, result_json, config_json, created_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			stage = excluded.stage,
			scene = excluded.scene,
			total_scenes = excluded.total_scenes,
			fraction = excluded.fraction,
			error = excluded.error,
			error_kind = excluded.error_kind,
			artifact_key = excluded.artifact_key,
			result_json = excluded.result_json,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at
	`, j.ID, string(j.State), j.Progress.Stage, j.Progress.Scene, j.Progress.TotalScenes, j.Progress.Fraction,
		nullString(j.Error), nullString(j.ErrorKind), nullString(j.ArtifactKey), resultJSON, string(configJSON),
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt), nullTime(j.FinishedAt))
	return err
}

func (r *SQLiteRepository) DeleteJob(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	rows, err := r.db.QueryContext(ctx, selectJobs+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := r.scanJobs(rows)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return &jobs[0], nil
}

func (r *SQLiteRepository) ListTerminalJobs(ctx context.Context) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, selectJobs+" WHERE state IN ('ready', 'failed') ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

const selectJobs = `
	SELECT id, state, stage, scene, total_scenes, fraction, error, error_kind,
		artifact_key, result_json, config_json, created_at, updated_at, finished_at
	FROM jobs`

func (r *SQLiteRepository) scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var j Job
		var state, configJSON, createdAt, updatedAt string
		var errMsg, errKind, artifactKey, resultJSON, finishedAt sql.NullString

		if err := rows.Scan(&j.ID, &state, &j.Progress.Stage, &j.Progress.Scene, &j.Progress.TotalScenes,
			&j.Progress.Fraction, &errMsg, &errKind, &artifactKey, &resultJSON, &configJSON,
			&createdAt, &updatedAt, &finishedAt); err != nil {
			return nil, err
		}

		j.State = State(state)
		j.Error = errMsg.String
		j.ErrorKind = errKind.String
		j.ArtifactKey = artifactKey.String
		j.CreatedAt = parseTime(createdAt)
		j.UpdatedAt = parseTime(updatedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			j.FinishedAt = &t
		}
		if err := json.Unmarshal([]byte(configJSON), &j.Config); err != nil {
			return nil, fmt.Errorf("decode config of job %s: %w", j.ID, err)
		}
		if resultJSON.Valid {
			var res video.RenderResult
			if err := json.Unmarshal([]byte(resultJSON.String), &res); err != nil {
				return nil, fmt.Errorf("decode result of job %s: %w", j.ID, err)
			}
			j.Result = &res
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
