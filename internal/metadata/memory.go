package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// MemoryStore is an in-process implementation of every repository
// interface, guarded by a single mutex. It backs local development and
// tests; production deployments use the Postgres-backed repositories in
// postgres.go instead. Modeled on the teacher's RunManager: a mutex plus
// plain maps keyed by entity id, with atomic claim implemented as a
// check-and-set under the same lock.
type MemoryStore struct {
	mu sync.RWMutex

	subjects   map[string]*Subject
	sessions   map[string]*Session
	recordings map[string]*Recording
	jobs       map[string]*ProcessingJob
	models     map[string]*MLModel
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects:   make(map[string]*Subject),
		sessions:   make(map[string]*Session),
		recordings: make(map[string]*Recording),
		jobs:       make(map[string]*ProcessingJob),
		models:     make(map[string]*MLModel),
	}
}

func newID() string { return uuid.NewString() }

// --- Subjects ---

func (s *MemoryStore) Create(ctx context.Context, subj *Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subj.ID == "" {
		subj.ID = newID()
	}
	subj.CreatedAt = time.Now().UTC()
	cp := *subj
	s.subjects[subj.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subj, ok := s.subjects[id]
	if !ok {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "subject.get", nil)
	}
	cp := *subj
	return &cp, nil
}

// --- Sessions ---

func (s *MemoryStore) CreateSession(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = newID()
	}
	sess.CreatedAt = time.Now().UTC()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "session.get", nil)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) ListSessionsBySubject(ctx context.Context, subjectID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Session
	for _, sess := range s.sessions {
		if sess.SubjectID == subjectID {
			out = append(out, *sess)
		}
	}
	return out, nil
}

// --- Recordings ---

func (s *MemoryStore) CreateRecording(ctx context.Context, r *Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = RecordingUploaded
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	s.recordings[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRecording(ctx context.Context, id string) (*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recordings[id]
	if !ok {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "recording.get", nil)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRecordingsBySession(ctx context.Context, sessionID string) ([]Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Recording
	for _, r := range s.recordings {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *MemoryStore) TransitionRecordingStatus(ctx context.Context, id string, newStatus RecordingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[id]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "recording.transition", nil)
	}
	if !CanTransitionRecording(r.Status, newStatus) {
		return corepipeerrors.NewDataError("invalid recording status transition "+string(r.Status)+" -> "+string(newStatus), nil)
	}
	r.Status = newStatus
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetRecordingDecodeMetadata(ctx context.Context, id string, sampleRateHz float64, channelCount int, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[id]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "recording.set_decode_metadata", nil)
	}
	if r.SampleRateHz != nil {
		return nil // already populated; immutable after first decode
	}
	r.SampleRateHz = &sampleRateHz
	r.ChannelCount = &channelCount
	r.DurationSeconds = &durationSeconds
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetRecordingCleanedPath(ctx context.Context, id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[id]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "recording.set_cleaned_path", nil)
	}
	if r.Status != RecordingProcessed && r.Status != RecordingNeedsReview {
		return corepipeerrors.NewDataError("cleaned_path requires status processed or needs_review", nil)
	}
	r.CleanedPath = &path
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetRecordingFeaturesPath(ctx context.Context, id, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recordings[id]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "recording.set_features_path", nil)
	}
	if r.CleanedPath == nil {
		return corepipeerrors.NewDataError("features_path requires cleaned_path to be set", nil)
	}
	r.FeaturesPath = &path
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CountRecordingsNewSince(ctx context.Context, t time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, r := range s.recordings {
		if r.CreatedAt.After(t) && r.FeaturesPath != nil {
			count++
		}
	}
	return count, nil
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(ctx context.Context, j *ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = newID()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	j.CreatedAt = time.Now().UTC()
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*ProcessingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "job.get", nil)
	}
	cp := *j
	return &cp, nil
}

// ClaimJob atomically moves a pending job to running. A job already
// running or terminal is returned unchanged with claimed=false, matching
// the at-least-once queue contract: workers treat re-delivery as a no-op.
func (s *MemoryStore) ClaimJob(ctx context.Context, jobID, workerID, taskID string) (*ProcessingJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, false, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "job.claim", nil)
	}
	if j.Status != JobPending {
		cp := *j
		return &cp, false, nil
	}
	j.Status = JobRunning
	j.WorkerID = &workerID
	j.TaskID = &taskID
	now := time.Now().UTC()
	j.StartedAt = &now
	cp := *j
	return &cp, true, nil
}

func (s *MemoryStore) UpdateJobProgress(ctx context.Context, jobID string, progress float64, logLine string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "job.update_progress", nil)
	}
	if j.Status != JobRunning {
		return nil
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	if logLine != "" {
		if j.Log != "" {
			j.Log += "\n"
		}
		j.Log += logLine
	}
	return nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, jobID string) error {
	return s.finishJob(jobID, JobCompleted, "")
}

func (s *MemoryStore) FailJob(ctx context.Context, jobID, errMsg string) error {
	return s.finishJob(jobID, JobFailed, errMsg)
}

func (s *MemoryStore) finishJob(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "job.finish", nil)
	}
	if IsTerminalJobStatus(j.Status) {
		return nil
	}
	j.Status = status
	now := time.Now().UTC()
	j.FinishedAt = &now
	if status == JobCompleted {
		j.Progress = 1.0
	}
	if errMsg != "" {
		j.Error = &errMsg
		j.Log += "\nERROR: " + errMsg
	}
	return nil
}

func (s *MemoryStore) CancelJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "job.cancel", nil)
	}
	if IsTerminalJobStatus(j.Status) {
		return nil // cancelling a terminal job is a no-op
	}
	j.Status = JobCancelled
	now := time.Now().UTC()
	j.FinishedAt = &now
	return nil
}

func (s *MemoryStore) RunningJobForRecordingStep(ctx context.Context, recordingID string, step JobStep) (*ProcessingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.RecordingID == recordingID && j.Step == step && j.Status == JobRunning {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

// --- Models ---

func (s *MemoryStore) CreateModel(ctx context.Context, m *MLModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Stage == "" {
		m.Stage = StageDevelopment
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	s.models[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetModel(ctx context.Context, id string) (*MLModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return nil, corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "model.get", nil)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListModelsByStage(ctx context.Context, stage ModelStage) ([]MLModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MLModel
	for _, m := range s.models {
		if m.Stage == stage {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetProductionModel(ctx context.Context) (*MLModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.models {
		if m.Stage == StageProduction {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

// PromoteModel atomically promotes modelID to production, demoting any
// existing production model to candidate in the same critical section. If
// modelID does not exist, no demotion occurs and a ModelError is returned
// — the prior production model's stage is left untouched.
func (s *MemoryStore) PromoteModel(ctx context.Context, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.models[modelID]
	if !ok {
		return corepipeerrors.NewModelError("promote: model not found", nil)
	}
	for _, m := range s.models {
		if m.ID != modelID && m.Stage == StageProduction {
			m.Stage = StageCandidate
		}
	}
	target.Stage = StageProduction
	return nil
}

func (s *MemoryStore) SetModelStage(ctx context.Context, modelID string, stage ModelStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[modelID]
	if !ok {
		return corepipeerrors.NewStorageError(corepipeerrors.KindStorageNotFound, "model.set_stage", nil)
	}
	m.Stage = stage
	return nil
}

// --- Repository interface adapters ---
//
// MemoryStore's own methods use flattened names (CreateRecording,
// GetJob, ...) to avoid name collisions on one struct across five entity
// types. These thin adapters expose the narrow per-entity interfaces
// defined in repository.go without duplicating any logic.

type memSubjectRepo struct{ s *MemoryStore }

func (s *MemoryStore) SubjectRepository() SubjectRepository { return memSubjectRepo{s} }
func (a memSubjectRepo) Create(ctx context.Context, subj *Subject) error { return a.s.Create(ctx, subj) }
func (a memSubjectRepo) Get(ctx context.Context, id string) (*Subject, error) { return a.s.Get(ctx, id) }

type memSessionRepo struct{ s *MemoryStore }

func (s *MemoryStore) SessionRepository() SessionRepository { return memSessionRepo{s} }
func (a memSessionRepo) Create(ctx context.Context, sess *Session) error {
	return a.s.CreateSession(ctx, sess)
}
func (a memSessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	return a.s.GetSession(ctx, id)
}
func (a memSessionRepo) ListBySubject(ctx context.Context, subjectID string) ([]Session, error) {
	return a.s.ListSessionsBySubject(ctx, subjectID)
}

type memRecordingRepo struct{ s *MemoryStore }

func (s *MemoryStore) RecordingRepository() RecordingRepository { return memRecordingRepo{s} }
func (a memRecordingRepo) Create(ctx context.Context, r *Recording) error {
	return a.s.CreateRecording(ctx, r)
}
func (a memRecordingRepo) Get(ctx context.Context, id string) (*Recording, error) {
	return a.s.GetRecording(ctx, id)
}
func (a memRecordingRepo) ListBySession(ctx context.Context, sessionID string) ([]Recording, error) {
	return a.s.ListRecordingsBySession(ctx, sessionID)
}
func (a memRecordingRepo) TransitionStatus(ctx context.Context, id string, newStatus RecordingStatus) error {
	return a.s.TransitionRecordingStatus(ctx, id, newStatus)
}
func (a memRecordingRepo) SetDecodeMetadata(ctx context.Context, id string, sampleRateHz float64, channelCount int, durationSeconds float64) error {
	return a.s.SetRecordingDecodeMetadata(ctx, id, sampleRateHz, channelCount, durationSeconds)
}
func (a memRecordingRepo) SetCleanedPath(ctx context.Context, id, path string) error {
	return a.s.SetRecordingCleanedPath(ctx, id, path)
}
func (a memRecordingRepo) SetFeaturesPath(ctx context.Context, id, path string) error {
	return a.s.SetRecordingFeaturesPath(ctx, id, path)
}
func (a memRecordingRepo) CountNewSince(ctx context.Context, t time.Time) (int, error) {
	return a.s.CountRecordingsNewSince(ctx, t)
}

type memJobRepo struct{ s *MemoryStore }

func (s *MemoryStore) JobRepository() JobRepository { return memJobRepo{s} }
func (a memJobRepo) Create(ctx context.Context, j *ProcessingJob) error { return a.s.CreateJob(ctx, j) }
func (a memJobRepo) Get(ctx context.Context, id string) (*ProcessingJob, error) {
	return a.s.GetJob(ctx, id)
}
func (a memJobRepo) ClaimPending(ctx context.Context, jobID, workerID, taskID string) (*ProcessingJob, bool, error) {
	return a.s.ClaimJob(ctx, jobID, workerID, taskID)
}
func (a memJobRepo) UpdateProgress(ctx context.Context, jobID string, progress float64, logLine string) error {
	return a.s.UpdateJobProgress(ctx, jobID, progress, logLine)
}
func (a memJobRepo) Complete(ctx context.Context, jobID string) error { return a.s.CompleteJob(ctx, jobID) }
func (a memJobRepo) Fail(ctx context.Context, jobID string, errMsg string) error {
	return a.s.FailJob(ctx, jobID, errMsg)
}
func (a memJobRepo) Cancel(ctx context.Context, jobID string) error { return a.s.CancelJob(ctx, jobID) }
func (a memJobRepo) RunningForRecordingStep(ctx context.Context, recordingID string, step JobStep) (*ProcessingJob, error) {
	return a.s.RunningJobForRecordingStep(ctx, recordingID, step)
}

type memModelRepo struct{ s *MemoryStore }

func (s *MemoryStore) ModelRepository() ModelRepository { return memModelRepo{s} }
func (a memModelRepo) Create(ctx context.Context, m *MLModel) error { return a.s.CreateModel(ctx, m) }
func (a memModelRepo) Get(ctx context.Context, id string) (*MLModel, error) {
	return a.s.GetModel(ctx, id)
}
func (a memModelRepo) ListByStage(ctx context.Context, stage ModelStage) ([]MLModel, error) {
	return a.s.ListModelsByStage(ctx, stage)
}
func (a memModelRepo) GetProduction(ctx context.Context) (*MLModel, error) {
	return a.s.GetProductionModel(ctx)
}
func (a memModelRepo) Promote(ctx context.Context, modelID string) error {
	return a.s.PromoteModel(ctx, modelID)
}
func (a memModelRepo) SetStage(ctx context.Context, modelID string, stage ModelStage) error {
	return a.s.SetModelStage(ctx, modelID, stage)
}
