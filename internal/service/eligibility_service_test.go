package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenseikai/dojo-api/internal/models"
)

type mockEligibilityClassReader struct {
	classes   map[string]*models.Class
	schedules map[string][]models.ClassSchedule
}

func (m *mockEligibilityClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEligibilityClassReader) ListSchedules(ctx context.Context, classID string) ([]models.ClassSchedule, error) {
	return m.schedules[classID], nil
}

type mockEligibilityProgramReader struct {
	programs map[string]*models.Program
}

func (m *mockEligibilityProgramReader) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockEligibilityStudentReader struct {
	students map[string]*models.Student
}

func (m *mockEligibilityStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockEligibilityEnrollmentReader struct {
	nonTerminal  map[string]*models.Enrollment
	activeCounts map[string]int
	slots        []models.ActiveScheduleSlot
	completed    map[string]bool
}

func (m *mockEligibilityEnrollmentReader) FindNonTerminal(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if e, ok := m.nonTerminal[studentID+":"+classID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEligibilityEnrollmentReader) CountActiveByClass(ctx context.Context, classID string) (int, error) {
	return m.activeCounts[classID], nil
}

func (m *mockEligibilityEnrollmentReader) ListActiveStudentSlots(ctx context.Context, studentID string) ([]models.ActiveScheduleSlot, error) {
	return m.slots, nil
}

func (m *mockEligibilityEnrollmentReader) HasCompleted(ctx context.Context, studentID, programID string) (bool, error) {
	return m.completed[studentID+":"+programID], nil
}

func intPtr(v int) *int                          { return &v }
func beltPtr(r models.BeltRank) *models.BeltRank { return &r }
func strPtr(s string) *string                    { return &s }

func eligibilityFixture() (*EligibilityService, *mockEligibilityClassReader, *mockEligibilityProgramReader, *mockEligibilityStudentReader, *mockEligibilityEnrollmentReader) {
	classes := &mockEligibilityClassReader{
		classes: map[string]*models.Class{
			"c1": {ID: "c1", ProgramID: "p1", Name: "Youth Kata A", MaxCapacity: 10, Active: true},
		},
		schedules: map[string][]models.ClassSchedule{
			"c1": {{ID: "sch1", ClassID: "c1", DayOfWeek: time.Monday, StartMin: 17 * 60, EndMin: 18*60 + 30}},
		},
	}
	programs := &mockEligibilityProgramReader{
		programs: map[string]*models.Program{
			"p1": {ID: "p1", Name: "Youth", Active: true},
		},
	}
	students := &mockEligibilityStudentReader{
		students: map[string]*models.Student{
			"s1": {
				ID:        "s1",
				FamilyID:  "f1",
				FirstName: "Aiko",
				LastName:  "Tanaka",
				Gender:    "female",
				BirthDate: time.Date(2014, time.March, 10, 0, 0, 0, 0, time.UTC),
				BeltRank:  models.BeltOrange,
				Active:    true,
			},
		},
	}
	enrollments := &mockEligibilityEnrollmentReader{
		nonTerminal:  map[string]*models.Enrollment{},
		activeCounts: map[string]int{},
		completed:    map[string]bool{},
	}
	svc := NewEligibilityService(classes, programs, students, enrollments, nil)
	svc.now = func() time.Time { return time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC) }
	return svc, classes, programs, students, enrollments
}

func TestValidateEnrollmentAllChecksPass(t *testing.T) {
	svc, _, _, _, _ := eligibilityFixture()

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.True(t, v.CapacityAvailable)
	assert.True(t, v.MeetsEligibility)
	assert.True(t, v.AgeAppropriate)
	assert.True(t, v.BeltRequirementsMet)
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.Warnings)
}

func TestValidateEnrollmentClassNotFound(t *testing.T) {
	svc, _, _, _, _ := eligibilityFixture()

	_, err := svc.ValidateEnrollment(context.Background(), "nope", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")
}

func TestValidateEnrollmentInactiveClass(t *testing.T) {
	svc, classes, _, _, _ := eligibilityFixture()
	classes.classes["c1"].Active = false

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.MeetsEligibility)
	assert.Contains(t, v.Errors, "class is not active")
}

func TestValidateEnrollmentInactiveClassAccumulatesOtherErrors(t *testing.T) {
	svc, classes, _, _, enrollments := eligibilityFixture()
	classes.classes["c1"].Active = false
	enrollments.nonTerminal["s1:c1"] = &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusWaitlist}

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Errors, "class is not active")
	assert.Contains(t, v.Errors, "student is already on the waitlist for this class")
}

func TestValidateEnrollmentAtCapacityIsWarningOnly(t *testing.T) {
	svc, _, _, _, enrollments := eligibilityFixture()
	enrollments.activeCounts["c1"] = 10

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.IsValid, "full class must not block enrollment")
	assert.False(t, v.CapacityAvailable)
	assert.NotEmpty(t, v.Warnings)
}

func TestValidateEnrollmentUnlimitedCapacityNeverFull(t *testing.T) {
	svc, classes, _, _, enrollments := eligibilityFixture()
	classes.classes["c1"].MaxCapacity = 0
	enrollments.activeCounts["c1"] = 5000

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.CapacityAvailable)
	assert.Empty(t, v.Warnings)
}

func TestValidateEnrollmentDuplicateByStatus(t *testing.T) {
	cases := []struct {
		status  models.EnrollmentStatus
		message string
	}{
		{models.EnrollmentStatusActive, "student is already enrolled in this class"},
		{models.EnrollmentStatusWaitlist, "student is already on the waitlist for this class"},
		{models.EnrollmentStatusTrial, "student already has a trial enrollment in this class"},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			svc, _, _, _, enrollments := eligibilityFixture()
			enrollments.nonTerminal["s1:c1"] = &models.Enrollment{ID: "e1", Status: tc.status}

			v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
			require.NoError(t, err)
			assert.False(t, v.IsValid)
			assert.Contains(t, v.Errors, tc.message)
		})
	}
}

func TestValidateEnrollmentAgeBoundary(t *testing.T) {
	svc, _, programs, students, _ := eligibilityFixture()
	programs.programs["p1"].MinAge = intPtr(12)

	// Born 2014-03-10, checked 2026-06-01: birthday already passed, age 12.
	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.True(t, v.AgeAppropriate)

	// Push the birthday past the check date: age rolls back to 11.
	students.students["s1"].BirthDate = time.Date(2014, time.September, 1, 0, 0, 0, 0, time.UTC)
	v, err = svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.AgeAppropriate)
	assert.False(t, v.MeetsEligibility)
	assert.Contains(t, v.Errors, "student must be at least 12 years old")
}

func TestValidateEnrollmentAgeBoundaryExact(t *testing.T) {
	svc, _, programs, students, _ := eligibilityFixture()
	programs.programs["p1"].MinAge = intPtr(12)

	// Twelfth birthday falls on the check date itself: eligible.
	students.students["s1"].BirthDate = time.Date(2014, time.June, 1, 0, 0, 0, 0, time.UTC)
	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.True(t, v.AgeAppropriate)

	// One day short of the birthday: still 11, rejected.
	students.students["s1"].BirthDate = time.Date(2014, time.June, 2, 0, 0, 0, 0, time.UTC)
	v, err = svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.AgeAppropriate)
	assert.Contains(t, v.Errors, "student must be at least 12 years old")
}

func TestValidateEnrollmentUnrankedStudent(t *testing.T) {
	svc, _, programs, students, _ := eligibilityFixture()
	students.students["s1"].BeltRank = ""

	// No belt bounds on the program: an unranked student passes.
	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.True(t, v.BeltRequirementsMet)

	// With a minimum, the unranked student counts as white belt and gets
	// the too-low message, not the above-range one.
	programs.programs["p1"].MinBeltRank = beltPtr(models.BeltGreen)
	v, err = svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.BeltRequirementsMet)
	assert.Contains(t, v.Errors, "student must hold at least a green belt")
}

func TestValidateEnrollmentBeltBounds(t *testing.T) {
	svc, _, programs, _, _ := eligibilityFixture()
	programs.programs["p1"].MinBeltRank = beltPtr(models.BeltGreen)

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.BeltRequirementsMet)
	assert.Contains(t, v.Errors, "student must hold at least a green belt")
}

func TestValidateEnrollmentGenderRestriction(t *testing.T) {
	svc, _, programs, _, _ := eligibilityFixture()
	programs.programs["p1"].Gender = models.GenderMale

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Errors, "student does not meet the program's gender restriction")
}

func TestValidateEnrollmentPrerequisite(t *testing.T) {
	svc, _, programs, _, enrollments := eligibilityFixture()
	programs.programs["p1"].PrerequisiteID = strPtr("p0")

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Errors, "student has not completed the prerequisite program")

	enrollments.completed["s1:p0"] = true
	v, err = svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
}

func TestValidateEnrollmentScheduleConflictBlocksEligibility(t *testing.T) {
	svc, _, _, _, enrollments := eligibilityFixture()
	enrollments.slots = []models.ActiveScheduleSlot{
		{EnrollmentID: "e9", ClassID: "c2", ClassName: "Sparring", DayOfWeek: time.Monday, StartMin: 18 * 60, EndMin: 19 * 60},
	}

	v, err := svc.ValidateEnrollment(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.MeetsEligibility)
	assert.Contains(t, v.Errors[0], "schedule conflict with Sparring")
}

func TestCheckScheduleConflictsOverlap(t *testing.T) {
	svc, _, _, _, enrollments := eligibilityFixture()

	// Candidate slot is Mon 17:00-18:30.
	cases := []struct {
		name     string
		slot     models.ActiveScheduleSlot
		conflict bool
	}{
		{
			name:     "partial overlap",
			slot:     models.ActiveScheduleSlot{ClassID: "c2", DayOfWeek: time.Monday, StartMin: 18 * 60, EndMin: 19 * 60},
			conflict: true,
		},
		{
			name:     "contained",
			slot:     models.ActiveScheduleSlot{ClassID: "c2", DayOfWeek: time.Monday, StartMin: 17*60 + 30, EndMin: 18 * 60},
			conflict: true,
		},
		{
			name:     "back to back is clear",
			slot:     models.ActiveScheduleSlot{ClassID: "c2", DayOfWeek: time.Monday, StartMin: 18*60 + 30, EndMin: 19 * 60},
			conflict: false,
		},
		{
			name:     "different weekday is clear",
			slot:     models.ActiveScheduleSlot{ClassID: "c2", DayOfWeek: time.Tuesday, StartMin: 17 * 60, EndMin: 18 * 60},
			conflict: false,
		},
		{
			name:     "same class never conflicts with itself",
			slot:     models.ActiveScheduleSlot{ClassID: "c1", DayOfWeek: time.Monday, StartMin: 17 * 60, EndMin: 18 * 60},
			conflict: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enrollments.slots = []models.ActiveScheduleSlot{tc.slot}
			result, err := svc.CheckScheduleConflicts(context.Background(), "s1", "c1")
			require.NoError(t, err)
			assert.Equal(t, tc.conflict, result.HasConflicts)
		})
	}
}

func TestCheckScheduleConflictsWindow(t *testing.T) {
	svc, _, _, _, enrollments := eligibilityFixture()
	enrollments.slots = []models.ActiveScheduleSlot{
		{EnrollmentID: "e9", ClassID: "c2", ClassName: "Sparring", DayOfWeek: time.Monday, StartMin: 18 * 60, EndMin: 19 * 60},
	}

	result, err := svc.CheckScheduleConflicts(context.Background(), "s1", "c1")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	// Overlap window is the intersection of 17:00-18:30 and 18:00-19:00.
	assert.Equal(t, 18*60, result.Conflicts[0].StartMin)
	assert.Equal(t, 18*60+30, result.Conflicts[0].EndMin)
}
