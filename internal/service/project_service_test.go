package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-backoffice-api/internal/dto"
	"github.com/noah-isme/institute-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

func newProjectFixture() (*ProjectService, *projectRepoStub, *publisherStub) {
	members := newMemberRepoStub(
		models.Member{ID: "m-1", Email: "m@x.com", Status: models.MemberStatusActive},
		models.Member{ID: "m-2", Email: "idle@x.com", Status: models.MemberStatusInactive},
	)
	projects := newProjectRepoStub(models.Project{ID: "p1", Name: "Robotics", Status: models.ProjectStatusActive})
	publisher := &publisherStub{}
	return NewProjectService(projects, members, nil, nil, WithPublisher(publisher)), projects, publisher
}

func TestProjectCreateValidatesMembersAndDates(t *testing.T) {
	svc, _, publisher := newProjectFixture()
	ctx := context.Background()

	created, err := svc.Create(ctx, dto.CreateProjectRequest{
		Name:            "Pottery",
		StartDate:       "2024-01-10",
		AssignedMembers: []string{"m-1", "m-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusActive, created.Status)
	assert.Equal(t, []string{"m-1"}, []string(created.AssignedMembers))
	assert.Contains(t, publisher.tables(), models.TableMembers)

	_, err = svc.Create(ctx, dto.CreateProjectRequest{Name: "Idle", StartDate: "2024-01-10", AssignedMembers: []string{"m-2"}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateProjectRequest{Name: "Ghost", StartDate: "2024-01-10", AssignedMembers: []string{"m-9"}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	end := "2023-12-31"
	_, err = svc.Create(ctx, dto.CreateProjectRequest{Name: "Backwards", StartDate: "2024-01-10", EndDate: &end})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestProjectAssignmentDrivesMemberVisibility(t *testing.T) {
	svc, _, _ := newProjectFixture()
	ctx := context.Background()
	member := memberScope("m-1", "m@x.com")

	visible, err := svc.List(ctx, member, dto.ProjectQuery{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	project, err := svc.AssignMember(ctx, "p1", dto.AssignMemberRequest{MemberID: "m-1"})
	require.NoError(t, err)
	assert.True(t, project.HasMember("m-1"))

	visible, err = svc.List(ctx, member, dto.ProjectQuery{})
	require.NoError(t, err)
	require.Len(t, visible, 1)

	_, err = svc.AssignMember(ctx, "p1", dto.AssignMemberRequest{MemberID: "m-2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.UnassignMember(ctx, "p1", "m-1")
	require.NoError(t, err)
	_, err = svc.UnassignMember(ctx, "p1", "m-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Get(ctx, member, "p1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestProjectUpdateClearsEndDate(t *testing.T) {
	svc, _, _ := newProjectFixture()
	ctx := context.Background()

	end := "2025-06-30"
	start := "2025-01-01"
	updated, err := svc.Update(ctx, "p1", dto.UpdateProjectRequest{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.NotNil(t, updated.EndDate)

	cleared := ""
	updated, err = svc.Update(ctx, "p1", dto.UpdateProjectRequest{EndDate: &cleared})
	require.NoError(t, err)
	assert.Nil(t, updated.EndDate)
	assert.Equal(t, 3, updated.Version)

	stale := 1
	_, err = svc.Update(ctx, "p1", dto.UpdateProjectRequest{Version: &stale})
	assert.True(t, appErrors.Is(err, appErrors.ErrStaleVersion))
}

func TestProjectDeleteMissing(t *testing.T) {
	svc, projects, _ := newProjectFixture()
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "p1"))
	assert.Empty(t, projects.projects)
	assert.True(t, appErrors.Is(svc.Delete(ctx, "p1"), appErrors.ErrNotFound))
}
