package jobs

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

// JobRepo is the Job Ledger (spec.md §4.10): create/update/read background
// job records with a monotonic state machine and a terminal result payload.
type JobRepo interface {
	Create(dbc dbctx.Context, jobID string, url string) (*types.Job, error)
	Start(dbc dbctx.Context, jobID string) error
	Finish(dbc dbctx.Context, jobID string, state types.JobState, result any) error
	Get(dbc dbctx.Context, jobID string) (*types.Job, error)
	// ClaimNextPending atomically marks one pending job in_progress and
	// returns it, for the worker pool to pick up. Returns nil, nil when
	// there is no pending job.
	ClaimNextPending(dbc dbctx.Context) (*types.Job, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRepo) Create(dbc dbctx.Context, jobID string, url string) (*types.Job, error) {
	job := &types.Job{JobID: jobID, URL: url, State: types.JobPending}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return job, nil
}

// Start transitions pending -> in_progress. Idempotent if already
// in_progress; fails if the job is already in a terminal state.
func (r *jobRepo) Start(dbc dbctx.Context, jobID string) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.Job
		if err := txx.Where("job_id = ?", jobID).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pipeerr.New(pipeerr.KindInternal, "job not found: "+jobID, err)
			}
			return pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
		}
		switch job.State {
		case types.JobInProgress:
			return nil
		case types.JobPending:
			return txx.Model(&types.Job{}).Where("job_id = ?", jobID).
				Updates(map[string]interface{}{"state": types.JobInProgress, "updated_at": time.Now()}).Error
		default:
			return pipeerr.New(pipeerr.KindInternal, "cannot start a job already in terminal state "+string(job.State), nil)
		}
	})
}

// Finish applies the terminal transition. Idempotent only when called again
// with the same terminal state and an equivalent payload; any other repeat
// call against an already-terminal job fails.
func (r *jobRepo) Finish(dbc dbctx.Context, jobID string, state types.JobState, result any) error {
	if !state.IsTerminal() {
		return pipeerr.New(pipeerr.KindInternal, "Finish requires a terminal state, got "+string(state), nil)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return pipeerr.Wrap(pipeerr.KindInternal, err)
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.Job
		if err := txx.Where("job_id = ?", jobID).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pipeerr.New(pipeerr.KindInternal, "job not found: "+jobID, err)
			}
			return pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
		}
		if job.State.IsTerminal() {
			var stored, incoming any
			if job.State == state && json.Unmarshal(job.Result, &stored) == nil &&
				json.Unmarshal(raw, &incoming) == nil && reflect.DeepEqual(stored, incoming) {
				return nil
			}
			return pipeerr.New(pipeerr.KindInternal, "job "+jobID+" already finished with state "+string(job.State), nil)
		}
		return txx.Model(&types.Job{}).Where("job_id = ?", jobID).
			Updates(map[string]interface{}{
				"state":      state,
				"result":     datatypes.JSON(raw),
				"updated_at": time.Now(),
			}).Error
	})
}

func (r *jobRepo) Get(dbc dbctx.Context, jobID string) (*types.Job, error) {
	var job types.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return &job, nil
}

func (r *jobRepo) ClaimNextPending(dbc dbctx.Context) (*types.Job, error) {
	var claimed *types.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.Job
		err := txx.Clauses(lockingClause()).
			Where("state = ?", types.JobPending).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txx.Model(&types.Job{}).Where("job_id = ?", job.JobID).
			Updates(map[string]interface{}{"state": types.JobInProgress, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		job.State = types.JobInProgress
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return claimed, nil
}
