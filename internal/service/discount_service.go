package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/pkg/config"
	appErrors "github.com/kenseikai/dojo-api/pkg/errors"
	"github.com/kenseikai/dojo-api/pkg/jobs"
)

// Automation rule identifiers. One coupon per rule per family, ever.
const (
	DiscountRuleFamily = "family_plan"
	DiscountRuleIntro  = "intro_offer"
)

type discountRepository interface {
	RecordEvent(ctx context.Context, event *models.DiscountEvent) error
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	HasAssignment(ctx context.Context, familyID, rule string) (bool, error)
	CreateAssignment(ctx context.Context, assignment *models.DiscountAssignment) error
	ListAssignmentsByFamily(ctx context.Context, familyID string) ([]models.DiscountAssignment, error)
}

type discountEnrollmentCounter interface {
	CountEnrolledStudentsByFamily(ctx context.Context, familyID string) (int, error)
	CountByFamily(ctx context.Context, familyID string) (int, error)
}

// DiscountService records enrollment events in a ledger and runs automation
// rules over them asynchronously. Publication is fire-and-forget from the
// enrollment path; rule evaluation happens on the worker queue.
type DiscountService struct {
	repo        discountRepository
	enrollments discountEnrollmentCounter
	queue       *jobs.Queue
	cfg         config.DiscountsConfig
	metrics     *MetricsService
	logger      *zap.Logger
}

func NewDiscountService(repo discountRepository, enrollments discountEnrollmentCounter, cfg config.DiscountsConfig, metrics *MetricsService, logger *zap.Logger) *DiscountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DiscountService{
		repo:        repo,
		enrollments: enrollments,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
	}
	s.queue = jobs.NewQueue("discounts", s.handleEvent, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool. Stop drains it.
func (s *DiscountService) Start(ctx context.Context) { s.queue.Start(ctx) }
func (s *DiscountService) Stop()                     { s.queue.Stop() }

// PublishEnrollmentCreated records the event and hands it to the workers.
// Callers treat failure as non-fatal; the enrollment has already been saved.
func (s *DiscountService) PublishEnrollmentCreated(ctx context.Context, enrollment *models.Enrollment, familyID string) error {
	if !s.cfg.Enabled {
		return nil
	}
	event := &models.DiscountEvent{
		ID:           uuid.NewString(),
		Type:         models.DiscountEventEnrollmentCreated,
		StudentID:    enrollment.StudentID,
		FamilyID:     familyID,
		EnrollmentID: enrollment.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.RecordEvent(ctx, event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record discount event")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: event,
	})
}

// ListFamilyAssignments returns the coupons issued to a family.
func (s *DiscountService) ListFamilyAssignments(ctx context.Context, familyID string) ([]models.DiscountAssignment, error) {
	assignments, err := s.repo.ListAssignmentsByFamily(ctx, familyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list discount assignments")
	}
	return assignments, nil
}

func (s *DiscountService) handleEvent(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(*models.DiscountEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	if err := s.applyRules(ctx, event); err != nil {
		return err
	}
	return s.repo.MarkProcessed(ctx, event.ID, time.Now().UTC())
}

// applyRules evaluates every automation rule against the family the event
// belongs to. Rules are idempotent via the per-family assignment check.
func (s *DiscountService) applyRules(ctx context.Context, event *models.DiscountEvent) error {
	if err := s.applyFamilyPlan(ctx, event); err != nil {
		return err
	}
	return s.applyIntroOffer(ctx, event)
}

// applyFamilyPlan issues a coupon once a family has two or more actively
// enrolled students.
func (s *DiscountService) applyFamilyPlan(ctx context.Context, event *models.DiscountEvent) error {
	exists, err := s.repo.HasAssignment(ctx, event.FamilyID, DiscountRuleFamily)
	if err != nil || exists {
		return err
	}
	count, err := s.enrollments.CountEnrolledStudentsByFamily(ctx, event.FamilyID)
	if err != nil {
		return err
	}
	if count < 2 {
		return nil
	}
	return s.issue(ctx, event, DiscountRuleFamily, s.cfg.FamilyPercentOff, nil)
}

// applyIntroOffer issues a coupon for a family's very first enrollment.
func (s *DiscountService) applyIntroOffer(ctx context.Context, event *models.DiscountEvent) error {
	exists, err := s.repo.HasAssignment(ctx, event.FamilyID, DiscountRuleIntro)
	if err != nil || exists {
		return err
	}
	count, err := s.enrollments.CountByFamily(ctx, event.FamilyID)
	if err != nil {
		return err
	}
	if count != 1 {
		return nil
	}
	return s.issue(ctx, event, DiscountRuleIntro, s.cfg.IntroPercentOff, &event.StudentID)
}

func (s *DiscountService) issue(ctx context.Context, event *models.DiscountEvent, rule string, percentOff int, studentID *string) error {
	assignment := &models.DiscountAssignment{
		ID:         uuid.NewString(),
		FamilyID:   event.FamilyID,
		StudentID:  studentID,
		Code:       couponCode(rule),
		Rule:       rule,
		PercentOff: percentOff,
		ExpiresAt:  time.Now().UTC().Add(s.cfg.CouponTTL),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		return err
	}
	s.metrics.CountCoupon(rule)
	s.logger.Info("discount coupon issued",
		zap.String("family_id", event.FamilyID),
		zap.String("rule", rule),
		zap.Int("percent_off", percentOff))
	return nil
}

func couponCode(rule string) string {
	prefix := strings.ToUpper(strings.ReplaceAll(rule, "_", "-"))
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
