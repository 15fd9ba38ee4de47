package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" sql.DB driver
	"github.com/jmoiron/sqlx"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// DB wraps a sqlx connection pool opened against the Postgres metadata
// store, providing the five Postgres-backed repository implementations
// below.
type DB struct {
	conn *sqlx.DB
}

// Open connects to dsn using the pgx stdlib driver, wrapped by sqlx for
// struct scanning.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageFatal, "db.open", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the connection pool.
func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) SubjectRepository() SubjectRepository     { return &pgSubjects{d.conn} }
func (d *DB) SessionRepository() SessionRepository     { return &pgSessions{d.conn} }
func (d *DB) RecordingRepository() RecordingRepository { return &pgRecordings{d.conn} }
func (d *DB) JobRepository() JobRepository             { return &pgJobs{d.conn} }
func (d *DB) ModelRepository() ModelRepository         { return &pgModels{d.conn} }

// translateErr maps a sql error to the pipeline's typed error taxonomy.
func translateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, op, err)
	}
	return corepipeerrors.NewStorageError(corepipeerrors.KindStorageTransient, op, err)
}

type pgSubjects struct{ db *sqlx.DB }

func (r *pgSubjects) Create(ctx context.Context, s *Subject) error {
	if s.ID == "" {
		s.ID = newID()
	}
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, label, date_of_birth, notes, created_at) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.Label, s.DateOfBirth, s.Notes, s.CreatedAt)
	return translateErr("subject.create", err)
}

func (r *pgSubjects) Get(ctx context.Context, id string) (*Subject, error) {
	var s Subject
	err := r.db.GetContext(ctx, &s, `SELECT * FROM subjects WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr("subject.get", err)
	}
	return &s, nil
}

type pgSessions struct{ db *sqlx.DB }

func (r *pgSessions) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = newID()
	}
	s.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, subject_id, "timestamp", protocol, created_at) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.SubjectID, s.Timestamp, s.Protocol, s.CreatedAt)
	return translateErr("session.create", err)
}

func (r *pgSessions) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `SELECT * FROM sessions WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr("session.get", err)
	}
	return &s, nil
}

func (r *pgSessions) ListBySubject(ctx context.Context, subjectID string) ([]Session, error) {
	var out []Session
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM sessions WHERE subject_id = $1 ORDER BY "timestamp"`, subjectID)
	if err != nil {
		return nil, translateErr("session.list_by_subject", err)
	}
	return out, nil
}

type pgRecordings struct{ db *sqlx.DB }

func (r *pgRecordings) Create(ctx context.Context, rec *Recording) error {
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.Status == "" {
		rec.Status = RecordingUploaded
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recordings
			(id, session_id, original_filename, format, status, raw_path, meta, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.SessionID, rec.OriginalFilename, rec.Format, rec.Status, rec.RawPath, rec.Meta, rec.CreatedAt, rec.UpdatedAt)
	return translateErr("recording.create", err)
}

func (r *pgRecordings) Get(ctx context.Context, id string) (*Recording, error) {
	var rec Recording
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM recordings WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr("recording.get", err)
	}
	return &rec, nil
}

func (r *pgRecordings) ListBySession(ctx context.Context, sessionID string) ([]Recording, error) {
	var out []Recording
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM recordings WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, translateErr("recording.list_by_session", err)
	}
	return out, nil
}

func (r *pgRecordings) TransitionStatus(ctx context.Context, id string, newStatus RecordingStatus) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateErr("recording.transition", err)
	}
	defer tx.Rollback()

	var current RecordingStatus
	if err := tx.GetContext(ctx, &current, `SELECT status FROM recordings WHERE id = $1 FOR UPDATE`, id); err != nil {
		return translateErr("recording.transition", err)
	}
	if !CanTransitionRecording(current, newStatus) {
		return corepipeerrors.NewDataError(fmt.Sprintf("invalid recording status transition %s -> %s", current, newStatus), nil)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE recordings SET status=$1, updated_at=now() WHERE id=$2`, newStatus, id); err != nil {
		return translateErr("recording.transition", err)
	}
	return translateErr("recording.transition", tx.Commit())
}

func (r *pgRecordings) SetDecodeMetadata(ctx context.Context, id string, sampleRateHz float64, channelCount int, durationSeconds float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET sample_rate_hz=$1, channel_count=$2, duration_seconds=$3, updated_at=now()
		WHERE id=$4 AND sample_rate_hz IS NULL`,
		sampleRateHz, channelCount, durationSeconds, id)
	return translateErr("recording.set_decode_metadata", err)
}

func (r *pgRecordings) SetCleanedPath(ctx context.Context, id, path string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET cleaned_path=$1, updated_at=now()
		WHERE id=$2 AND status IN ('processed','needs_review')`, path, id)
	if err != nil {
		return translateErr("recording.set_cleaned_path", err)
	}
	return checkRowsAffected(res, "cleaned_path requires status processed or needs_review")
}

func (r *pgRecordings) SetFeaturesPath(ctx context.Context, id, path string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET features_path=$1, updated_at=now()
		WHERE id=$2 AND cleaned_path IS NOT NULL`, path, id)
	if err != nil {
		return translateErr("recording.set_features_path", err)
	}
	return checkRowsAffected(res, "features_path requires cleaned_path to be set")
}

func (r *pgRecordings) CountNewSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM recordings WHERE created_at > $1 AND features_path IS NOT NULL`, t)
	if err != nil {
		return 0, translateErr("recording.count_new_since", err)
	}
	return count, nil
}

func checkRowsAffected(res sql.Result, detail string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translateErr("rows_affected", err)
	}
	if n == 0 {
		return corepipeerrors.NewDataError(detail, nil)
	}
	return nil
}

type pgJobs struct{ db *sqlx.DB }

func (r *pgJobs) Create(ctx context.Context, j *ProcessingJob) error {
	if j.ID == "" {
		j.ID = newID()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	j.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, recording_id, step, parameters, status, progress, created_at)
		VALUES ($1,$2,$3,$4,$5,0,$6)`,
		j.ID, j.RecordingID, j.Step, j.Parameters, j.Status, j.CreatedAt)
	return translateErr("job.create", err)
}

func (r *pgJobs) Get(ctx context.Context, id string) (*ProcessingJob, error) {
	var j ProcessingJob
	err := r.db.GetContext(ctx, &j, `SELECT * FROM processing_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, translateErr("job.get", err)
	}
	return &j, nil
}

// ClaimPending performs the atomic pending->running claim as a single
// conditional UPDATE: only a row still pending is affected, so concurrent
// claimers from an at-least-once queue race safely — exactly one wins.
func (r *pgJobs) ClaimPending(ctx context.Context, jobID, workerID, taskID string) (*ProcessingJob, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status='running', worker_id=$1, task_id=$2, started_at=now()
		WHERE id=$3 AND status='pending'`, workerID, taskID, jobID)
	if err != nil {
		return nil, false, translateErr("job.claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, translateErr("job.claim", err)
	}
	job, getErr := r.Get(ctx, jobID)
	if getErr != nil {
		return nil, false, getErr
	}
	return job, n > 0, nil
}

func (r *pgJobs) UpdateProgress(ctx context.Context, jobID string, progress float64, logLine string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET progress = GREATEST(progress, $1),
		    log = CASE WHEN $2 = '' THEN log WHEN log = '' THEN $2 ELSE log || E'\n' || $2 END
		WHERE id=$3 AND status='running'`, progress, logLine, jobID)
	return translateErr("job.update_progress", err)
}

func (r *pgJobs) Complete(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status='completed', progress=1.0, finished_at=now()
		WHERE id=$1 AND status='running'`, jobID)
	return translateErr("job.complete", err)
}

func (r *pgJobs) Fail(ctx context.Context, jobID string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status='failed', error=$1, finished_at=now(), log = log || E'\nERROR: ' || $1
		WHERE id=$2 AND status='running'`, errMsg, jobID)
	return translateErr("job.fail", err)
}

func (r *pgJobs) Cancel(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status='cancelled', finished_at=now()
		WHERE id=$1 AND status NOT IN ('completed','failed','cancelled')`, jobID)
	return translateErr("job.cancel", err)
}

func (r *pgJobs) RunningForRecordingStep(ctx context.Context, recordingID string, step JobStep) (*ProcessingJob, error) {
	var j ProcessingJob
	err := r.db.GetContext(ctx, &j, `
		SELECT * FROM processing_jobs WHERE recording_id=$1 AND step=$2 AND status='running'`, recordingID, step)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr("job.running_for_recording_step", err)
	}
	return &j, nil
}

type pgModels struct{ db *sqlx.DB }

func (r *pgModels) Create(ctx context.Context, m *MLModel) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Stage == "" {
		m.Stage = StageDevelopment
	}
	m.CreatedAt = time.Now().UTC()
	if err := m.MarshalJSONColumns(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ml_models
			(id, name, version, model_type, hyperparams, metrics, feature_names, scaler, cv_folds, provenance, stage, artifact_path, random_seed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.Name, m.Version, m.ModelType, m.Hyperparams, m.MetricsJSON, m.FeatureNamesJSON, m.ScalerJSON, m.CVFoldsJSON, m.ProvenanceJSON,
		m.Stage, m.ArtifactPath, m.RandomSeed, m.CreatedAt)
	return translateErr("model.create", err)
}

func (r *pgModels) Get(ctx context.Context, id string) (*MLModel, error) {
	var m MLModel
	if err := r.db.GetContext(ctx, &m, `SELECT * FROM ml_models WHERE id = $1`, id); err != nil {
		return nil, translateErr("model.get", err)
	}
	if err := m.UnmarshalJSONColumns(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *pgModels) ListByStage(ctx context.Context, stage ModelStage) ([]MLModel, error) {
	var out []MLModel
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM ml_models WHERE stage = $1 ORDER BY created_at DESC`, stage); err != nil {
		return nil, translateErr("model.list_by_stage", err)
	}
	for i := range out {
		if err := out[i].UnmarshalJSONColumns(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *pgModels) GetProduction(ctx context.Context) (*MLModel, error) {
	var m MLModel
	err := r.db.GetContext(ctx, &m, `SELECT * FROM ml_models WHERE stage = 'production' LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr("model.get_production", err)
	}
	if err := m.UnmarshalJSONColumns(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Promote atomically demotes the current production model (if any) and
// promotes modelID inside a single transaction, so a mid-failure leaves
// both models in their prior stage rather than with two production rows
// or none.
func (r *pgModels) Promote(ctx context.Context, modelID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateErr("model.promote", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE ml_models SET stage='candidate' WHERE stage='production' AND id != $1`, modelID); err != nil {
		return corepipeerrors.NewModelError("promote: demote prior production failed", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE ml_models SET stage='production' WHERE id=$1`, modelID)
	if err != nil {
		return corepipeerrors.NewModelError("promote: set production failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return corepipeerrors.NewModelError("promote: model not found", nil)
	}
	if err := tx.Commit(); err != nil {
		return corepipeerrors.NewModelError("promote: commit failed", err)
	}
	return nil
}

func (r *pgModels) SetStage(ctx context.Context, modelID string, stage ModelStage) error {
	_, err := r.db.ExecContext(ctx, `UPDATE ml_models SET stage=$1 WHERE id=$2`, stage, modelID)
	return translateErr("model.set_stage", err)
}
