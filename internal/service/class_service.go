package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/pkg/config"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	ListSchedules(ctx context.Context, classID string) ([]models.ClassSchedule, error)
	AddSchedule(ctx context.Context, schedule *models.ClassSchedule) error
	RemoveSchedule(ctx context.Context, scheduleID string) error
}

type classEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	CountActiveByClass(ctx context.Context, classID string) (int, error)
}

type classCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string)
}

// ClassRequest carries create/update payloads for classes.
type ClassRequest struct {
	ProgramID    string  `json:"program_id" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	InstructorID *string `json:"instructor_id"`
	MaxCapacity  int     `json:"max_capacity" validate:"min=0"`
}

// ScheduleRequest adds a weekly slot to a class.
type ScheduleRequest struct {
	DayOfWeek int `json:"day_of_week" validate:"min=0,max=6"`
	StartMin  int `json:"start_min" validate:"min=0,max=1439"`
	EndMin    int `json:"end_min" validate:"min=1,max=1440"`
}

// ClassService manages classes, their weekly schedules and rosters. Schedule
// and roster reads go through the cache; every write invalidates the class's
// cache keys.
type ClassService struct {
	repo        classRepository
	programs    programRepository
	enrollments classEnrollmentReader
	cache       classCache
	cacheCfg    config.CacheConfig
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewClassService(repo classRepository, programs programRepository, enrollments classEnrollmentReader, cache classCache, cacheCfg config.CacheConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		repo:        repo,
		programs:    programs,
		enrollments: enrollments,
		cache:       cache,
		cacheCfg:    cacheCfg,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

func scheduleCacheKey(classID string) string { return "class:schedules:" + classID }
func rosterCacheKey(classID string) string   { return "class:roster:" + classID }

func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if _, err := s.programs.FindByID(ctx, req.ProgramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	class := &models.Class{
		ProgramID:    req.ProgramID,
		Name:         req.Name,
		InstructorID: req.InstructorID,
		MaxCapacity:  req.MaxCapacity,
		Active:       true,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	class.ProgramID = req.ProgramID
	class.Name = req.Name
	class.InstructorID = req.InstructorID
	class.MaxCapacity = req.MaxCapacity
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.invalidate(id)
	return class, nil
}

// Schedules returns the class's weekly slots, cached.
func (s *ClassService) Schedules(ctx context.Context, classID string) ([]models.ClassSchedule, error) {
	key := scheduleCacheKey(classID)
	if s.cacheEnabled() {
		var cached []models.ClassSchedule
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.CountCacheHit()
			return cached, nil
		}
		s.metrics.CountCacheMiss()
	}
	schedules, err := s.repo.ListSchedules(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, key, schedules, s.cacheCfg.ScheduleTTL); err != nil {
			s.logger.Warn("failed to cache schedules", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return schedules, nil
}

// AddSchedule appends a weekly slot after checking it does not overlap a slot
// the class already has.
func (s *ClassService) AddSchedule(ctx context.Context, classID string, req ScheduleRequest) (*models.ClassSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if req.EndMin <= req.StartMin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_min must be after start_min")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListSchedules(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	slot := &models.ClassSchedule{
		ClassID:   classID,
		DayOfWeek: time.Weekday(req.DayOfWeek),
		StartMin:  req.StartMin,
		EndMin:    req.EndMin,
	}
	for _, other := range existing {
		if slot.Overlaps(other) {
			return nil, appErrors.Clone(appErrors.ErrScheduleConflict,
				fmt.Sprintf("slot overlaps existing schedule %s", other.Window()))
		}
	}
	if err := s.repo.AddSchedule(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add schedule")
	}
	s.invalidate(classID)
	return slot, nil
}

func (s *ClassService) RemoveSchedule(ctx context.Context, classID, scheduleID string) error {
	if err := s.repo.RemoveSchedule(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove schedule")
	}
	s.invalidate(classID)
	return nil
}

// Roster returns the class with its enrollments and seat counts, cached.
func (s *ClassService) Roster(ctx context.Context, classID string) (*models.ClassRoster, error) {
	key := rosterCacheKey(classID)
	if s.cacheEnabled() {
		var cached models.ClassRoster
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.CountCacheHit()
			return &cached, nil
		}
		s.metrics.CountCacheMiss()
	}

	detail, err := s.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{ClassID: classID, PageSize: 500})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	roster := &models.ClassRoster{Class: *detail, Enrollments: enrollments}
	for _, e := range enrollments {
		switch e.Status {
		case models.EnrollmentStatusActive:
			roster.ActiveCount++
		case models.EnrollmentStatusWaitlist:
			roster.WaitlistCount++
		}
	}

	if s.cacheEnabled() {
		if err := s.cache.Set(ctx, key, roster, s.cacheCfg.RosterTTL); err != nil {
			s.logger.Warn("failed to cache roster", zap.String("class_id", classID), zap.Error(err))
		}
	}
	return roster, nil
}

// InvalidateRoster drops the cached roster, used by enrollment writes.
func (s *ClassService) InvalidateRoster(classID string) {
	if s.cacheEnabled() {
		s.cache.Delete(context.Background(), rosterCacheKey(classID))
	}
}

func (s *ClassService) invalidate(classID string) {
	if s.cacheEnabled() {
		s.cache.Delete(context.Background(), scheduleCacheKey(classID), rosterCacheKey(classID))
	}
}

func (s *ClassService) cacheEnabled() bool {
	return s.cache != nil && s.cacheCfg.Enabled
}
