package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenseikai/dojo-api/internal/models"
	"github.com/kenseikai/dojo-api/pkg/config"
)

type mockSessionRepo struct {
	sessions   map[string]models.ClassSession
	nextID     int
	attendance map[string]models.SessionAttendance
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions:   map[string]models.ClassSession{},
		attendance: map[string]models.SessionAttendance{},
	}
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	var list []models.ClassSession
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list, len(list), nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.ClassSession) error {
	m.nextID++
	session.ID = fmt.Sprintf("sess%d", m.nextID)
	m.sessions[session.ID] = *session
	return nil
}

func (m *mockSessionRepo) ExistsOnDate(ctx context.Context, classID string, date time.Time, startMin int) (bool, error) {
	for _, s := range m.sessions {
		if s.ClassID == classID && s.Date.Equal(date) && s.StartMin == startMin {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	m.sessions[id] = s
	return nil
}

func (m *mockSessionRepo) UpsertAttendance(ctx context.Context, record *models.SessionAttendance) (*models.SessionAttendance, error) {
	key := record.SessionID + ":" + record.StudentID
	m.attendance[key] = *record
	return record, nil
}

func (m *mockSessionRepo) BulkUpsertAttendance(ctx context.Context, records []models.SessionAttendance, atomic bool) ([]models.SessionAttendance, []error, error) {
	saved := make([]models.SessionAttendance, 0, len(records))
	for _, r := range records {
		m.attendance[r.SessionID+":"+r.StudentID] = r
		saved = append(saved, r)
	}
	return saved, nil, nil
}

func (m *mockSessionRepo) ListAttendance(ctx context.Context, sessionID string) ([]models.SessionAttendanceRecord, error) {
	var list []models.SessionAttendanceRecord
	for _, a := range m.attendance {
		if a.SessionID == sessionID {
			list = append(list, models.SessionAttendanceRecord{SessionAttendance: a})
		}
	}
	return list, nil
}

type mockScheduleReader struct {
	classes   map[string]*models.Class
	schedules map[string][]models.ClassSchedule
}

func (m *mockScheduleReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleReader) ListSchedules(ctx context.Context, classID string) ([]models.ClassSchedule, error) {
	return m.schedules[classID], nil
}

func sessionFixture() (*SessionService, *mockSessionRepo, *mockScheduleReader) {
	repo := newMockSessionRepo()
	classes := &mockScheduleReader{
		classes: map[string]*models.Class{
			"c1": {ID: "c1", ProgramID: "p1", Name: "Youth Kata A", Active: true},
		},
		schedules: map[string][]models.ClassSchedule{
			"c1": {
				{ID: "sch1", ClassID: "c1", DayOfWeek: time.Monday, StartMin: 17 * 60, EndMin: 18 * 60},
				{ID: "sch2", ClassID: "c1", DayOfWeek: time.Wednesday, StartMin: 17 * 60, EndMin: 18 * 60},
			},
		},
	}
	svc := NewSessionService(repo, classes, config.AttendanceConfig{LateGrace: 10 * time.Minute}, time.UTC, nil, nil, nil)
	return svc, repo, classes
}

func TestGenerateSessionsFromWeeklySchedule(t *testing.T) {
	svc, repo, _ := sessionFixture()

	// 2026-06-01 is a Monday. Two weeks: 2 Mondays + 2 Wednesdays.
	created, err := svc.Generate(context.Background(), GenerateSessionsRequest{
		ClassID:  "c1",
		DateFrom: "2026-06-01",
		DateTo:   "2026-06-14",
	})
	require.NoError(t, err)
	assert.Len(t, created, 4)
	assert.Len(t, repo.sessions, 4)
	for _, s := range created {
		assert.Equal(t, models.SessionStatusScheduled, s.Status)
	}
}

func TestGenerateSessionsIsIdempotent(t *testing.T) {
	svc, repo, _ := sessionFixture()

	req := GenerateSessionsRequest{ClassID: "c1", DateFrom: "2026-06-01", DateTo: "2026-06-07"}
	first, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, repo.sessions, 2)
}

func TestGenerateSessionsWithoutSchedule(t *testing.T) {
	svc, _, classes := sessionFixture()
	classes.schedules["c1"] = nil

	_, err := svc.Generate(context.Background(), GenerateSessionsRequest{
		ClassID:  "c1",
		DateFrom: "2026-06-01",
		DateTo:   "2026-06-07",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no weekly schedule")
}

func TestMarkAttendanceAutoLate(t *testing.T) {
	svc, repo, _ := sessionFixture()
	repo.sessions["sess1"] = models.ClassSession{
		ID:       "sess1",
		ClassID:  "c1",
		Date:     time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		StartMin: 17 * 60,
		EndMin:   18 * 60,
		Status:   models.SessionStatusScheduled,
	}

	// Within the 10 minute grace: stays present.
	svc.now = func() time.Time { return time.Date(2026, time.June, 1, 17, 8, 0, 0, time.UTC) }
	record, err := svc.MarkAttendance(context.Background(), "sess1", MarkAttendanceRequest{StudentID: "s1", Status: "present"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)

	// Past the grace: stored as late.
	svc.now = func() time.Time { return time.Date(2026, time.June, 1, 17, 15, 0, 0, time.UTC) }
	record, err = svc.MarkAttendance(context.Background(), "sess1", MarkAttendanceRequest{StudentID: "s2", Status: "present"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)

	// Explicit absent marks are never rewritten.
	record, err = svc.MarkAttendance(context.Background(), "sess1", MarkAttendanceRequest{StudentID: "s3", Status: "absent"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusAbsent, record.Status)
}

func TestMarkAttendanceCancelledSession(t *testing.T) {
	svc, repo, _ := sessionFixture()
	repo.sessions["sess1"] = models.ClassSession{
		ID:      "sess1",
		ClassID: "c1",
		Date:    time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		Status:  models.SessionStatusCancelled,
	}

	_, err := svc.MarkAttendance(context.Background(), "sess1", MarkAttendanceRequest{StudentID: "s1", Status: "present"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestMarkAttendanceBulk(t *testing.T) {
	svc, repo, _ := sessionFixture()
	repo.sessions["sess1"] = models.ClassSession{
		ID:       "sess1",
		ClassID:  "c1",
		Date:     time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		StartMin: 17 * 60,
		Status:   models.SessionStatusScheduled,
	}
	svc.now = func() time.Time { return time.Date(2026, time.June, 1, 17, 0, 0, 0, time.UTC) }

	result, err := svc.MarkAttendanceBulk(context.Background(), "sess1", BulkAttendanceRequest{
		Records: []MarkAttendanceRequest{
			{StudentID: "s1", Status: "present"},
			{StudentID: "s2", Status: "excused"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.Saved, 2)
	assert.Empty(t, result.Errors)
	assert.Len(t, repo.attendance, 2)
}
