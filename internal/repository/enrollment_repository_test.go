package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kenseikai/dojo-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCountActiveByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListWaitlistedFIFO(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "program_id", "status", "notes", "enrolled_at", "completed_at", "dropped_at"}).
		AddRow("enr-1", "stu-1", "class-1", "prog-1", models.EnrollmentStatusWaitlist, nil, base, nil, nil).
		AddRow("enr-2", "stu-2", "class-1", "prog-1", models.EnrollmentStatusWaitlist, nil, base.Add(time.Hour), nil, nil)
	mock.ExpectQuery(`SELECT .+ FROM enrollments e\s+WHERE e\.class_id = \$1 AND e\.status = \$2\s+ORDER BY e\.enrolled_at ASC LIMIT \$3`).
		WithArgs("class-1", models.EnrollmentStatusWaitlist, 2).
		WillReturnRows(rows)

	enrollments, err := repo.ListWaitlisted(context.Background(), "class-1", 2)
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	require.Equal(t, "enr-1", enrollments[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", ClassID: "class-1", ProgramID: "prog-1"}
	err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusStampsTimestamps(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)
	at := time.Date(2026, time.May, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, dropped_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusDropped, at))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, completed_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusCompleted, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusCompleted, at))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteGuardsWaitlistStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE enrollments\s+SET status = \$2, notes = CASE`).
		WithArgs("enr-1", models.EnrollmentStatusActive, "Promoted from waitlist", models.EnrollmentStatusWaitlist).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Promote(context.Background(), "enr-1", "Promoted from waitlist")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveStudentSlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"enrollment_id", "class_id", "class_name", "day_of_week", "start_min", "end_min"}).
		AddRow("enr-1", "class-2", "Sparring", int(time.Monday), 18*60, 19*60)
	mock.ExpectQuery(`SELECT e\.id AS enrollment_id, c\.id AS class_id, c\.name AS class_name`).
		WithArgs("stu-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)

	slots, err := repo.ListActiveStudentSlots(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, time.Monday, slots[0].DayOfWeek)
	require.Equal(t, 18*60, slots[0].StartMin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountEnrolledStudentsByFamily(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT e\.student_id\) FROM enrollments e`).
		WithArgs("fam-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountEnrolledStudentsByFamily(context.Background(), "fam-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
