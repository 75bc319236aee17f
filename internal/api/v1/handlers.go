package apiv1

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/app/repository"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalogsync"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/syncqueue"
)

var validate = validator.New()

// SyncAPI serves the catalog sync HTTP surface.
type SyncAPI struct {
	manager *syncqueue.Manager
	service *catalogsync.Service
	repos   *repository.Repositories
}

// NewSyncAPI creates the API server.
func NewSyncAPI(manager *syncqueue.Manager, service *catalogsync.Service, repos *repository.Repositories) *SyncAPI {
	return &SyncAPI{manager: manager, service: service, repos: repos}
}

// RegisterRoutes mounts the sync endpoints on the given group.
func (s *SyncAPI) RegisterRoutes(v1 fiber.Router) {
	sync := v1.Group("/sync")
	sync.Post("/full", s.PostFullSync)
	sync.Post("/group", s.PostGroupSync)
	sync.Post("/country", s.PostCountrySync)
	sync.Get("/status", s.GetStatus)
	sync.Get("/history", s.GetHistory)
	sync.Post("/pause", s.PostPause)
	sync.Post("/resume", s.PostResume)
	sync.Post("/cleanup-stuck", s.PostCleanupStuck)
	sync.Get("/queue", s.GetQueueState)
	sync.Delete("/queue", s.DeleteQueueState)
}

// FullSyncRequest triggers a full catalog sync for one provider.
type FullSyncRequest struct {
	Provider string `json:"provider" validate:"required"`
	Priority string `json:"priority" validate:"omitempty,oneof=manual scheduled"`
}

// GroupSyncRequest triggers a sync scoped to one bundle group.
type GroupSyncRequest struct {
	Provider    string `json:"provider" validate:"required"`
	BundleGroup string `json:"bundle_group" validate:"required"`
}

// CountrySyncRequest triggers a sync scoped to one country.
type CountrySyncRequest struct {
	Provider string `json:"provider" validate:"required"`
	Country  string `json:"country" validate:"required,alpha,min=2,max=3"`
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return err
	}
	return validate.Struct(out)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": err.Error(),
	})
}

func conflict(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{
		"error":   "conflict",
		"message": message,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal",
		"message": err.Error(),
	})
}

func accepted(c *fiber.Ctx, job *syncqueue.Job) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":   job.ID,
		"job_type": job.Type,
		"status":   job.Status,
		"priority": job.Priority,
	})
}

func requestPriority(raw string) syncqueue.Priority {
	if raw == string(syncqueue.PriorityScheduled) {
		return syncqueue.PriorityScheduled
	}
	// API-triggered jobs default to manual priority
	return syncqueue.PriorityManual
}

// PostFullSync enqueues a full catalog sync.
func (s *SyncAPI) PostFullSync(c *fiber.Ctx) error {
	var req FullSyncRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	if _, ok := s.service.Client(req.Provider); !ok {
		return badRequest(c, errors.New("unknown provider: "+req.Provider))
	}

	job, err := s.manager.AddFullSyncJob(c.UserContext(), req.Provider, "api", requestPriority(req.Priority))
	if err != nil {
		if errors.Is(err, syncqueue.ErrSyncInProgress) {
			return conflict(c, "A full sync for this provider is already in progress")
		}
		return internalError(c, err)
	}
	return accepted(c, job)
}

// PostGroupSync enqueues a bundle-group sync.
func (s *SyncAPI) PostGroupSync(c *fiber.Ctx) error {
	var req GroupSyncRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	if _, ok := s.service.Client(req.Provider); !ok {
		return badRequest(c, errors.New("unknown provider: "+req.Provider))
	}

	job, err := s.manager.AddGroupSyncJob(c.UserContext(), req.Provider, req.BundleGroup, syncqueue.PriorityManual)
	if err != nil {
		if errors.Is(err, syncqueue.ErrSyncInProgress) {
			return conflict(c, "A sync for this bundle group is already in progress")
		}
		return internalError(c, err)
	}
	return accepted(c, job)
}

// PostCountrySync enqueues a country-scoped sync.
func (s *SyncAPI) PostCountrySync(c *fiber.Ctx) error {
	var req CountrySyncRequest
	if err := parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	if _, ok := s.service.Client(req.Provider); !ok {
		return badRequest(c, errors.New("unknown provider: "+req.Provider))
	}

	job, err := s.manager.AddCountrySyncJob(c.UserContext(), req.Provider, req.Country, syncqueue.PriorityManual)
	if err != nil {
		if errors.Is(err, syncqueue.ErrSyncInProgress) {
			return conflict(c, "A sync for this country is already in progress")
		}
		return internalError(c, err)
	}
	return accepted(c, job)
}

// GetStatus reports queue occupancy, active jobs, aggregate job counters
// and per-provider sync bookkeeping.
func (s *SyncAPI) GetStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()

	queueStats, err := s.manager.GetQueueStats(ctx)
	if err != nil {
		return internalError(c, err)
	}
	active, err := s.repos.SyncJob.ListActive(ctx)
	if err != nil {
		return internalError(c, err)
	}
	jobStats, err := s.repos.SyncJob.Stats(ctx)
	if err != nil {
		return internalError(c, err)
	}
	providers, err := s.repos.Metadata.List(ctx)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"queue":       queueStats,
		"active_jobs": active,
		"job_stats":   jobStats,
		"providers":   providers,
	})
}

// GetHistory lists past sync jobs, newest first.
func (s *SyncAPI) GetHistory(c *fiber.Ctx) error {
	filter := repository.SyncJobFilter{
		Status:  models.SyncJobStatus(c.Query("status")),
		JobType: models.SyncJobType(c.Query("type")),
		Limit:   c.QueryInt("limit", 50),
		Offset:  c.QueryInt("offset", 0),
	}

	jobs, err := s.repos.SyncJob.History(c.UserContext(), filter)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// PostPause suspends queue consumption.
func (s *SyncAPI) PostPause(c *fiber.Ctx) error {
	if err := s.manager.Pause(c.UserContext()); err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"paused": true})
}

// PostResume re-enables queue consumption.
func (s *SyncAPI) PostResume(c *fiber.Ctx) error {
	if err := s.manager.Resume(c.UserContext()); err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"paused": false})
}

// GetQueueState reports raw Redis queue state for admin inspection.
func (s *SyncAPI) GetQueueState(c *fiber.Ctx) error {
	waiting, err := s.repos.Queue.GetListLength(syncqueue.JobQueueKey)
	if err != nil {
		return internalError(c, err)
	}
	processing, err := s.repos.Queue.GetListLength(syncqueue.JobProcessingKey)
	if err != nil {
		return internalError(c, err)
	}
	jobKeys, err := s.repos.Queue.FindKeysByPatterns([]string{syncqueue.JobKeyPrefix + "*"})
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"waiting":    waiting,
		"processing": processing,
		"job_keys":   len(jobKeys),
	})
}

// DeleteQueueState drops all queued work and job entries. This is a
// destructive admin operation for recovering from a wedged queue.
func (s *SyncAPI) DeleteQueueState(c *fiber.Ctx) error {
	keys, err := s.repos.Queue.FindKeysByPatterns([]string{
		syncqueue.JobKeyPrefix + "*",
		syncqueue.JobQueueKey,
		syncqueue.JobProcessingKey,
	})
	if err != nil {
		return internalError(c, err)
	}
	deleted, err := s.repos.Queue.DeleteKeys(keys)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

// PostCleanupStuck cancels jobs running past the stuck threshold.
func (s *SyncAPI) PostCleanupStuck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	cancelled, err := s.service.CancelStuckJobs(ctx)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": cancelled})
}
