package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/pkg/config"
	"github.com/kenseikai/dojo-api/pkg/jobs"
)

type mockDiscountRepo struct {
	events      []models.DiscountEvent
	processed   []string
	assignments []models.DiscountAssignment
}

func (m *mockDiscountRepo) RecordEvent(ctx context.Context, event *models.DiscountEvent) error {
	m.events = append(m.events, *event)
	return nil
}

func (m *mockDiscountRepo) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	m.processed = append(m.processed, eventID)
	return nil
}

func (m *mockDiscountRepo) HasAssignment(ctx context.Context, familyID, rule string) (bool, error) {
	for _, a := range m.assignments {
		if a.FamilyID == familyID && a.Rule == rule {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDiscountRepo) CreateAssignment(ctx context.Context, assignment *models.DiscountAssignment) error {
	m.assignments = append(m.assignments, *assignment)
	return nil
}

func (m *mockDiscountRepo) ListAssignmentsByFamily(ctx context.Context, familyID string) ([]models.DiscountAssignment, error) {
	var list []models.DiscountAssignment
	for _, a := range m.assignments {
		if a.FamilyID == familyID {
			list = append(list, a)
		}
	}
	return list, nil
}

type mockFamilyCounter struct {
	activeStudents map[string]int
	totalEnrolled  map[string]int
}

func (m *mockFamilyCounter) CountEnrolledStudentsByFamily(ctx context.Context, familyID string) (int, error) {
	return m.activeStudents[familyID], nil
}

func (m *mockFamilyCounter) CountByFamily(ctx context.Context, familyID string) (int, error) {
	return m.totalEnrolled[familyID], nil
}

func discountFixture() (*DiscountService, *mockDiscountRepo, *mockFamilyCounter) {
	repo := &mockDiscountRepo{}
	counter := &mockFamilyCounter{
		activeStudents: map[string]int{},
		totalEnrolled:  map[string]int{},
	}
	cfg := config.DiscountsConfig{
		Enabled:          true,
		FamilyPercentOff: 15,
		IntroPercentOff:  10,
		CouponTTL:        90 * 24 * time.Hour,
	}
	svc := NewDiscountService(repo, counter, cfg, nil, nil)
	return svc, repo, counter
}

func testEvent(familyID string) *models.DiscountEvent {
	return &models.DiscountEvent{
		ID:           "ev1",
		Type:         models.DiscountEventEnrollmentCreated,
		StudentID:    "s1",
		FamilyID:     familyID,
		EnrollmentID: "e1",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestFamilyPlanRequiresTwoActiveStudents(t *testing.T) {
	svc, repo, counter := discountFixture()
	counter.activeStudents["f1"] = 1
	counter.totalEnrolled["f1"] = 3

	require.NoError(t, svc.applyRules(context.Background(), testEvent("f1")))
	for _, a := range repo.assignments {
		assert.NotEqual(t, DiscountRuleFamily, a.Rule)
	}

	counter.activeStudents["f1"] = 2
	require.NoError(t, svc.applyRules(context.Background(), testEvent("f1")))

	var family []models.DiscountAssignment
	for _, a := range repo.assignments {
		if a.Rule == DiscountRuleFamily {
			family = append(family, a)
		}
	}
	require.Len(t, family, 1)
	assert.Equal(t, 15, family[0].PercentOff)
	assert.Nil(t, family[0].StudentID)
}

func TestFamilyPlanIssuedOncePerFamily(t *testing.T) {
	svc, repo, counter := discountFixture()
	counter.activeStudents["f1"] = 3
	counter.totalEnrolled["f1"] = 5

	require.NoError(t, svc.applyRules(context.Background(), testEvent("f1")))
	require.NoError(t, svc.applyRules(context.Background(), testEvent("f1")))

	count := 0
	for _, a := range repo.assignments {
		if a.Rule == DiscountRuleFamily {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIntroOfferOnFirstEnrollmentOnly(t *testing.T) {
	svc, repo, counter := discountFixture()
	counter.totalEnrolled["f1"] = 1

	require.NoError(t, svc.applyRules(context.Background(), testEvent("f1")))

	var intro []models.DiscountAssignment
	for _, a := range repo.assignments {
		if a.Rule == DiscountRuleIntro {
			intro = append(intro, a)
		}
	}
	require.Len(t, intro, 1)
	assert.Equal(t, 10, intro[0].PercentOff)
	require.NotNil(t, intro[0].StudentID)
	assert.Equal(t, "s1", *intro[0].StudentID)

	// A second enrollment is no longer the family's first.
	repo.assignments = nil
	counter.totalEnrolled["f1"] = 2
	require.NoError(t, svc.applyRules(context.Background(), testEvent("f1")))
	assert.Empty(t, repo.assignments)
}

func TestPublishDisabledIsNoop(t *testing.T) {
	repo := &mockDiscountRepo{}
	svc := NewDiscountService(repo, &mockFamilyCounter{}, config.DiscountsConfig{Enabled: false}, nil, nil)

	err := svc.PublishEnrollmentCreated(context.Background(), &models.Enrollment{ID: "e1", StudentID: "s1"}, "f1")
	require.NoError(t, err)
	assert.Empty(t, repo.events)
}

func TestHandleEventMarksProcessed(t *testing.T) {
	svc, repo, counter := discountFixture()
	counter.totalEnrolled["f1"] = 1

	event := testEvent("f1")
	err := svc.handleEvent(context.Background(), jobs.Job{ID: event.ID, Type: string(event.Type), Payload: event})
	require.NoError(t, err)
	assert.Equal(t, []string{"ev1"}, repo.processed)
	assert.NotEmpty(t, repo.assignments)
}
