package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
)

func TestMemberRepositoryCreateDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectExec("INSERT INTO members").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "members_email_key"})

	err := repo.Create(context.Background(), &models.Member{Name: "Mia", Email: "m@x.com", Status: models.MemberStatusActive})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectExec("INSERT INTO members").WillReturnResult(sqlmock.NewResult(1, 1))

	member := &models.Member{Name: "Mia", Email: "m@x.com", Status: models.MemberStatusActive}
	require.NoError(t, repo.Create(context.Background(), member))
	assert.NotEmpty(t, member.ID)
	assert.NotNil(t, member.AssignedProjects)
	assert.Equal(t, 1, member.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryDeleteUnlinksProjects(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET assigned_members = array_remove(assigned_members, $1)")).
		WithArgs("m-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM members WHERE id = $1")).
		WithArgs("m-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "m-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemberRepositoryGetByEmailScansArray(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewMemberRepository(db)

	columns := []string{"id", "name", "email", "password_hash", "phone", "image_url", "status", "assigned_projects", "version", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM members WHERE LOWER(email) = LOWER($1)")).
		WithArgs("M@X.com").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("m-1", "Mia", "m@x.com", "hash", "", nil, "Active", []byte("{p-1,p-2}"), 2, time.Now(), time.Now()))

	member, err := repo.GetByEmail(context.Background(), "M@X.com")
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"p-1", "p-2"}, member.AssignedProjects)
	assert.True(t, member.IsActive())
	assert.NoError(t, mock.ExpectationsWereMet())
}
