package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
	"github.com/xxxsen/apisync/internal/pkg/jwt"
	"github.com/xxxsen/apisync/internal/pkg/validate"
	"github.com/xxxsen/apisync/internal/project"
	"github.com/xxxsen/apisync/internal/repo"
)

// Catalog is the import document describing destination bundles and jobs.
type Catalog struct {
	Bundles []model.Bundle `json:"bundles" validate:"dive"`
	Jobs    []model.Job    `json:"jobs" validate:"dive"`
}

func ParseCatalog(r io.Reader) (*Catalog, error) {
	var catalog Catalog
	if err := json.NewDecoder(r).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w: %v", appErr.ErrInvalid, err)
	}
	return &catalog, nil
}

type recordCounter interface {
	RecordStore
	Count(ctx context.Context, q model.RecordQuery) (int, error)
}

type runStateStore interface {
	Load(ctx context.Context, jobID string) (model.RunState, error)
	ResetStatus(ctx context.Context, jobID string) error
}

// JobService administers jobs: catalog import, status listing, purging the
// records a job created, and trigger tokens.
type JobService struct {
	jobs    *repo.JobRepo
	bundles *repo.BundleRepo
	records recordCounter
	state   runStateStore
	refs    project.RefResolver
	secret  []byte
}

func NewJobService(jobs *repo.JobRepo, bundles *repo.BundleRepo, records recordCounter, state runStateStore, refs project.RefResolver, secret string) *JobService {
	return &JobService{
		jobs:    jobs,
		bundles: bundles,
		records: records,
		state:   state,
		refs:    refs,
		secret:  []byte(secret),
	}
}

type ImportResult struct {
	Bundles int `json:"bundles"`
	Jobs    int `json:"jobs"`
}

// Import stores every bundle and job of the catalog. Jobs keep the UUID they
// were first given so issued trigger tokens stay valid across re-imports.
func (s *JobService) Import(ctx context.Context, catalog *Catalog) (*ImportResult, error) {
	if err := validate.Struct(catalog); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	result := &ImportResult{}
	for i := range catalog.Bundles {
		if err := s.bundles.Upsert(ctx, &catalog.Bundles[i]); err != nil {
			return result, fmt.Errorf("save bundle %s: %w", catalog.Bundles[i].Name, err)
		}
		result.Bundles++
	}
	for i := range catalog.Jobs {
		if _, err := s.Save(ctx, &catalog.Jobs[i]); err != nil {
			return result, fmt.Errorf("save job %s: %w", catalog.Jobs[i].ID, err)
		}
		result.Jobs++
	}
	logutil.GetLogger(ctx).Info("catalog imported",
		zap.Int("bundles", result.Bundles),
		zap.Int("jobs", result.Jobs),
	)
	return result, nil
}

// Save creates or replaces a job definition.
func (s *JobService) Save(ctx context.Context, job *model.Job) (*model.Job, error) {
	if err := validate.Struct(job); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	if _, err := s.bundles.Kind(ctx, job.Bundle); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	existing, err := s.jobs.GetByID(ctx, job.ID)
	switch {
	case err == nil:
		job.UUID = existing.UUID
		job.Ctime = existing.Ctime
	case appErr.IsNotFound(err):
		job.UUID = uuid.NewString()
		job.Ctime = now
	default:
		return nil, err
	}
	job.Mtime = now
	if err := s.jobs.Upsert(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobService) Delete(ctx context.Context, jobID string) error {
	return s.jobs.Delete(ctx, jobID)
}

func (s *JobService) List(ctx context.Context) ([]model.JobStatus, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.JobStatus, 0, len(jobs))
	for i := range jobs {
		status, err := s.status(ctx, &jobs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *status)
	}
	return out, nil
}

func (s *JobService) Get(ctx context.Context, jobID string) (*model.JobStatus, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, job)
}

func (s *JobService) status(ctx context.Context, job *model.Job) (*model.JobStatus, error) {
	state, err := s.state.Load(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	status := &model.JobStatus{Job: *job, State: state}
	kind, err := s.kindOf(ctx, job)
	if err != nil {
		// a job pointing at a bundle that is gone still gets listed
		logutil.GetLogger(ctx).Warn("resolve job bundle failed", zap.String("job", job.ID), zap.Error(err))
		return status, nil
	}
	count, err := s.records.Count(ctx, kind.IndexQuery(job))
	if err != nil {
		return nil, err
	}
	status.ItemsInSync = count
	return status, nil
}

func (s *JobService) kindOf(ctx context.Context, job *model.Job) (project.RecordKind, error) {
	kind, err := s.bundles.Kind(ctx, job.Bundle)
	if err != nil {
		return nil, err
	}
	return project.KindFor(kind, s.refs)
}

// Purge deletes every record the job has synced and resets its status.
func (s *JobService) Purge(ctx context.Context, jobID string) (int, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return 0, err
	}
	kind, err := s.kindOf(ctx, job)
	if err != nil {
		return 0, err
	}
	recs, err := s.records.Find(ctx, kind.PurgeQuery(job))
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range recs {
		err := s.records.Delete(ctx, rec.ID)
		switch {
		case err == nil:
			deleted++
		case appErr.IsNotFound(err):
			// removed concurrently
		default:
			return deleted, fmt.Errorf("delete record %s: %w", rec.ID, err)
		}
	}
	if err := s.state.ResetStatus(ctx, job.ID); err != nil {
		return deleted, err
	}
	logutil.GetLogger(ctx).Info("job records purged", zap.String("job", job.ID), zap.Int("deleted", deleted))
	return deleted, nil
}

// TriggerToken issues a token that starts the job through the public
// trigger endpoint. A zero ttl never expires.
func (s *JobService) TriggerToken(ctx context.Context, jobID string, ttl time.Duration) (string, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	return jwt.GenerateTriggerToken(job.ID, job.UUID, s.secret, ttl)
}

// ResolveTrigger maps a trigger token back to its job. Tokens issued for a
// job that was since deleted and recreated are refused.
func (s *JobService) ResolveTrigger(ctx context.Context, token string) (string, error) {
	claims, err := jwt.ParseTriggerToken(token, s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrUnauthorized, err)
	}
	job, err := s.jobs.GetByID(ctx, claims.JobID)
	if err != nil {
		return "", err
	}
	if job.UUID != claims.JobUUID {
		return "", appErr.ErrUnauthorized
	}
	return job.ID, nil
}
