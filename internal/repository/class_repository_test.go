package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/kenseikai/dojo-api/internal/models"
)

func TestClassRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)
	active := true
	rows := sqlmock.NewRows([]string{"id", "program_id", "name", "instructor_id", "max_capacity", "active", "created_at", "updated_at", "program_name", "instructor_name"}).
		AddRow("class-1", "prog-1", "Little Dragons A", "inst-1", 12, true, now, now, "Little Dragons", "Sensei Sato")
	mock.ExpectQuery(`SELECT c\.id, c\.program_id, c\.name, .+ WHERE c\.program_id = \$1 AND c\.name ILIKE \$2 AND c\.active = \$3 ORDER BY c\.name ASC`).
		WithArgs("prog-1", "%dragons%", true).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM classes c`).
		WithArgs("prog-1", "%dragons%", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{
		ProgramID: "prog-1",
		Search:    "dragons",
		Active:    &active,
		Page:      1,
		PageSize:  20,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, classes, 1)
	require.Equal(t, "Little Dragons A", classes[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListSchedulesOrdered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "class_id", "day_of_week", "start_min", "end_min"}).
		AddRow("sch-1", "class-1", int(time.Monday), 17*60, 18*60).
		AddRow("sch-2", "class-1", int(time.Wednesday), 17*60, 18*60)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, day_of_week, start_min, end_min")).
		WithArgs("class-1").
		WillReturnRows(rows)

	schedules, err := repo.ListSchedules(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	require.Equal(t, time.Monday, schedules[0].DayOfWeek)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryAddScheduleAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(`INSERT INTO class_schedules`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	schedule := &models.ClassSchedule{ClassID: "class-1", DayOfWeek: time.Friday, StartMin: 19 * 60, EndMin: 20 * 60}
	err := repo.AddSchedule(context.Background(), schedule)
	require.NoError(t, err)
	require.NotEmpty(t, schedule.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
