package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenseikai/dojo-api/internal/models"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	nextID      int
	createErr   map[string]error
	promoted    []string
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{},
		createErr:   map[string]error{},
	}
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindNonTerminal(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.ClassID == classID && !e.Status.Terminal() {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) CountActiveByClass(ctx context.Context, classID string) (int, error) {
	count := 0
	for _, e := range m.enrollments {
		if e.ClassID == classID && e.Status == models.EnrollmentStatusActive {
			count++
		}
	}
	return count, nil
}

func (m *mockEnrollmentRepo) ListActiveStudentSlots(ctx context.Context, studentID string) ([]models.ActiveScheduleSlot, error) {
	return nil, nil
}

func (m *mockEnrollmentRepo) HasCompleted(ctx context.Context, studentID, programID string) (bool, error) {
	return false, nil
}

func (m *mockEnrollmentRepo) ListWaitlisted(ctx context.Context, classID string, limit int) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.ClassID == classID && e.Status == models.EnrollmentStatusWaitlist {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].EnrolledAt.Before(list[j].EnrolledAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if err := m.createErr[enrollment.StudentID]; err != nil {
		return err
	}
	if enrollment.ID == "" {
		m.nextID++
		enrollment.ID = fmt.Sprintf("e%d", m.nextID)
	}
	m.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, at time.Time) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) Promote(ctx context.Context, id, note string) error {
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusWaitlist {
		return sql.ErrNoRows
	}
	e.Status = models.EnrollmentStatusActive
	m.enrollments[id] = e
	m.promoted = append(m.promoted, id)
	return nil
}

type mockEnrollClassReader struct {
	classes map[string]*models.Class
}

func (m *mockEnrollClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollStudentReader struct {
	students map[string]*models.Student
}

func (m *mockEnrollStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockValidatorResult struct {
	validation *models.EnrollmentValidation
	conflicts  *models.ScheduleConflictResult
}

// mockEnrollmentValidator returns canned results per student, falling back to
// a fully-passing validation.
type mockEnrollmentValidator struct {
	perStudent map[string]mockValidatorResult
	capacity   func(classID string) bool
}

func (m *mockEnrollmentValidator) ValidateEnrollment(ctx context.Context, classID, studentID string) (*models.EnrollmentValidation, error) {
	if r, ok := m.perStudent[studentID]; ok && r.validation != nil {
		return r.validation, nil
	}
	v := &models.EnrollmentValidation{
		IsValid:             true,
		CapacityAvailable:   true,
		MeetsEligibility:    true,
		AgeAppropriate:      true,
		BeltRequirementsMet: true,
	}
	if m.capacity != nil {
		v.CapacityAvailable = m.capacity(classID)
		if !v.CapacityAvailable {
			v.Warnings = append(v.Warnings, "class is at capacity; enrollment will be waitlisted")
		}
	}
	return v, nil
}

func (m *mockEnrollmentValidator) CheckScheduleConflicts(ctx context.Context, studentID, classID string) (*models.ScheduleConflictResult, error) {
	if r, ok := m.perStudent[studentID]; ok && r.conflicts != nil {
		return r.conflicts, nil
	}
	return &models.ScheduleConflictResult{Conflicts: []models.ScheduleConflict{}}, nil
}

type mockEventPublisher struct {
	published []string
	err       error
}

func (m *mockEventPublisher) PublishEnrollmentCreated(ctx context.Context, enrollment *models.Enrollment, familyID string) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, enrollment.ID)
	return nil
}

func enrollmentFixture(maxCapacity int) (*EnrollmentService, *mockEnrollmentRepo, *mockEnrollmentValidator, *mockEventPublisher) {
	repo := newMockEnrollmentRepo()
	classes := &mockEnrollClassReader{classes: map[string]*models.Class{
		"c1": {ID: "c1", ProgramID: "p1", Name: "Youth Kata A", MaxCapacity: maxCapacity, Active: true},
	}}
	students := &mockEnrollStudentReader{students: map[string]*models.Student{}}
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		students.students[id] = &models.Student{ID: id, FamilyID: "f-" + id, Active: true}
	}
	validator := &mockEnrollmentValidator{perStudent: map[string]mockValidatorResult{}}
	validator.capacity = func(classID string) bool {
		count, _ := repo.CountActiveByClass(context.Background(), classID)
		return maxCapacity <= 0 || count < maxCapacity
	}
	events := &mockEventPublisher{}
	svc := NewEnrollmentService(repo, classes, students, validator, events, nil, nil, nil)
	return svc, repo, validator, events
}

func TestEnrollActive(t *testing.T) {
	svc, repo, _, events := enrollmentFixture(10)

	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Len(t, repo.enrollments, 1)
	assert.Len(t, events.published, 1)
}

func TestEnrollDemotesToWaitlistWhenFull(t *testing.T) {
	svc, _, _, _ := enrollmentFixture(1)

	first, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, first.Status)

	second, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s2", ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlist, second.Status)
}

func TestEnrollRejectsInvalidValidation(t *testing.T) {
	svc, repo, validator, _ := enrollmentFixture(10)
	validator.perStudent["s1"] = mockValidatorResult{validation: &models.EnrollmentValidation{
		IsValid: false,
		Errors:  []string{"student is already enrolled in this class"},
	}}

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already enrolled")
	assert.Empty(t, repo.enrollments)
}

func TestEnrollRejectsScheduleConflict(t *testing.T) {
	svc, repo, validator, _ := enrollmentFixture(10)
	validator.perStudent["s1"] = mockValidatorResult{conflicts: &models.ScheduleConflictResult{
		HasConflicts: true,
		Conflicts: []models.ScheduleConflict{
			{ClassID: "c2", ClassName: "Sparring", DayOfWeek: time.Monday, StartMin: 18 * 60, EndMin: 19 * 60},
		},
	}}

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule conflict")
	assert.Empty(t, repo.enrollments)
}

func TestEnrollPublishFailureDoesNotFailEnrollment(t *testing.T) {
	svc, repo, _, events := enrollmentFixture(10)
	events.err = errors.New("broker down")

	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Len(t, repo.enrollments, 1)
}

func TestProcessWaitlistFIFO(t *testing.T) {
	svc, repo, _, _ := enrollmentFixture(3)

	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	repo.enrollments["w1"] = models.Enrollment{ID: "w1", StudentID: "s1", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base.Add(2 * time.Hour)}
	repo.enrollments["w2"] = models.Enrollment{ID: "w2", StudentID: "s2", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base}
	repo.enrollments["w3"] = models.Enrollment{ID: "w3", StudentID: "s3", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base.Add(time.Hour)}

	promoted, err := svc.ProcessWaitlist(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, promoted)
	// Oldest enrollment first.
	assert.Equal(t, []string{"w2", "w3", "w1"}, repo.promoted)
}

func TestProcessWaitlistRespectsCapacity(t *testing.T) {
	svc, repo, _, _ := enrollmentFixture(2)

	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	repo.enrollments["a1"] = models.Enrollment{ID: "a1", StudentID: "s4", ClassID: "c1", Status: models.EnrollmentStatusActive, EnrolledAt: base}
	repo.enrollments["w1"] = models.Enrollment{ID: "w1", StudentID: "s1", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base.Add(time.Hour)}
	repo.enrollments["w2"] = models.Enrollment{ID: "w2", StudentID: "s2", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base.Add(2 * time.Hour)}

	promoted, err := svc.ProcessWaitlist(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
	assert.Equal(t, []string{"w1"}, repo.promoted)
	assert.Equal(t, models.EnrollmentStatusWaitlist, repo.enrollments["w2"].Status)
}

func TestProcessWaitlistUnlimitedCapacityNeverPromotes(t *testing.T) {
	svc, repo, _, _ := enrollmentFixture(0)
	repo.enrollments["w1"] = models.Enrollment{ID: "w1", StudentID: "s1", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: time.Now()}

	promoted, err := svc.ProcessWaitlist(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.Empty(t, repo.promoted)
}

func TestProcessWaitlistSkipsDeactivatedClass(t *testing.T) {
	repo := newMockEnrollmentRepo()
	classes := &mockEnrollClassReader{classes: map[string]*models.Class{
		"c1": {ID: "c1", ProgramID: "p1", Name: "Youth Kata A", MaxCapacity: 3, Active: false},
	}}
	students := &mockEnrollStudentReader{students: map[string]*models.Student{}}
	validator := &mockEnrollmentValidator{perStudent: map[string]mockValidatorResult{}}
	svc := NewEnrollmentService(repo, classes, students, validator, &mockEventPublisher{}, nil, nil, nil)

	repo.enrollments["w1"] = models.Enrollment{ID: "w1", StudentID: "s1", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: time.Now()}

	promoted, err := svc.ProcessWaitlist(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, promoted)
	assert.Empty(t, repo.promoted)
	assert.Equal(t, models.EnrollmentStatusWaitlist, repo.enrollments["w1"].Status)
}

func TestProcessWaitlistSkipsIneligibleWithoutBackfill(t *testing.T) {
	svc, repo, validator, _ := enrollmentFixture(2)

	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	repo.enrollments["w1"] = models.Enrollment{ID: "w1", StudentID: "s1", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base}
	repo.enrollments["w2"] = models.Enrollment{ID: "w2", StudentID: "s2", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base.Add(time.Hour)}
	repo.enrollments["w3"] = models.Enrollment{ID: "w3", StudentID: "s3", ClassID: "c1", Status: models.EnrollmentStatusWaitlist, EnrolledAt: base.Add(2 * time.Hour)}
	validator.perStudent["s2"] = mockValidatorResult{validation: &models.EnrollmentValidation{
		IsValid:           false,
		CapacityAvailable: true,
		MeetsEligibility:  false,
		Errors:            []string{"schedule conflict with Sparring (Mon 18:00-19:00)"},
	}}

	promoted, err := svc.ProcessWaitlist(context.Background(), "c1")
	require.NoError(t, err)
	// Two open seats were fetched; the ineligible candidate is skipped and
	// its seat is not backfilled from further down the list.
	assert.Equal(t, 1, promoted)
	assert.Equal(t, []string{"w1"}, repo.promoted)
	assert.Equal(t, models.EnrollmentStatusWaitlist, repo.enrollments["w2"].Status)
	assert.Equal(t, models.EnrollmentStatusWaitlist, repo.enrollments["w3"].Status)
}

func TestDropFreesSeatAndPromotes(t *testing.T) {
	svc, repo, _, _ := enrollmentFixture(1)

	first, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s2", ClassID: "c1"})
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusWaitlist, second.Status)

	dropped, err := svc.Drop(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
	assert.Equal(t, models.EnrollmentStatusActive, repo.enrollments[second.ID].Status)
}

func TestDropAlreadyEnded(t *testing.T) {
	svc, repo, _, _ := enrollmentFixture(10)
	repo.enrollments["e1"] = models.Enrollment{ID: "e1", StudentID: "s1", ClassID: "c1", Status: models.EnrollmentStatusDropped}

	_, err := svc.Drop(context.Background(), "e1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already ended")
}

func TestBulkEnrollPartialFailure(t *testing.T) {
	svc, repo, validator, _ := enrollmentFixture(10)
	validator.perStudent["s3"] = mockValidatorResult{validation: &models.EnrollmentValidation{
		IsValid: false,
		Errors:  []string{"student is already enrolled in this class"},
	}}

	result, err := svc.BulkEnroll(context.Background(), BulkEnrollRequest{
		ClassID:    "c1",
		StudentIDs: []string{"s1", "s2", "s3", "s4", "s5"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Successful, 4)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "s3", result.Failed[0].StudentID)
	assert.Contains(t, result.Failed[0].Error, "already enrolled")
	// Successful enrollments are never rolled back.
	assert.Len(t, repo.enrollments, 4)
}
