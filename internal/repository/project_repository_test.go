package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
)

func TestProjectRepositoryAssignMemberUpdatesBothSides(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET assigned_members = array_append(assigned_members, $2)")).
		WithArgs("p-1", "m-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE members SET assigned_projects = array_append(assigned_projects, $2)")).
		WithArgs("m-1", "p-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.AssignMember(context.Background(), "p-1", "m-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryUnassignMemberNotAssigned(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("array_remove(assigned_members, $2)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UnassignMember(context.Background(), "p-1", "m-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryListForMember(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewProjectRepository(db)
	now := time.Now()

	columns := []string{"id", "name", "status", "description", "start_date", "end_date", "assigned_members", "version", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE 1=1 AND $1 = ANY(assigned_members) ORDER BY created_at DESC")).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("p-1", "Robotics", "Active", "", now, nil, []byte("{m-1}"), 1, now, now))

	projects, err := repo.List(context.Background(), models.ProjectFilter{MemberID: "m-1"})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.True(t, projects[0].HasMember("m-1"))
	assert.Nil(t, projects[0].EndDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryCreateLinksMembers(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO projects").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE members SET assigned_projects")).
		WithArgs("m-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	project := &models.Project{Name: "Robotics", Status: models.ProjectStatusActive, StartDate: time.Now(), AssignedMembers: []string{"m-1"}}
	require.NoError(t, repo.Create(context.Background(), project))
	assert.NotEmpty(t, project.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryStudentIDs(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT student_id FROM project_students WHERE project_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("s-1").AddRow("s-2"))

	ids, err := repo.StudentIDs(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, ids)

	ids, err = repo.StudentIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
