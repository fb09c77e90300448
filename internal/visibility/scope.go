// Package visibility decides which rows an actor may see. The same rules are
// pushed into repository filters and reapplied to fetched lists.
package visibility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
)

// Scope captures what an actor may read. The zero value sees nothing.
type Scope struct {
	Admin      bool
	MemberID   string
	Email      string
	ProjectIDs []string
	// StudentIDs is the roster of ProjectIDs. Attendance visibility follows
	// the student, not the project a record was taken under.
	StudentIDs []string
}

// ErrInactive is returned by Resolve for members that are deactivated or gone.
var ErrInactive = errors.New("member is not active")

// ForAdmin returns the unrestricted scope.
func ForAdmin(email string) Scope {
	return Scope{Admin: true, Email: email}
}

// ForMember returns the scope of a member assigned to projectIDs.
func ForMember(memberID, email string, projectIDs []string) Scope {
	return Scope{MemberID: memberID, Email: email, ProjectIDs: projectIDs}
}

// WithStudents returns a copy of s carrying the roster of its projects.
func (s Scope) WithStudents(studentIDs []string) Scope {
	s.StudentIDs = studentIDs
	return s
}

func (s Scope) hasProject(id string) bool {
	return contains(s.ProjectIDs, id)
}

func (s Scope) hasStudent(id string) bool {
	return contains(s.StudentIDs, id)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// CanSeeProject reports whether the project is visible.
func (s Scope) CanSeeProject(p models.Project) bool {
	return s.Admin || (s.MemberID != "" && p.HasMember(s.MemberID))
}

// CanSeeStudent reports whether any of the student's projects is visible.
func (s Scope) CanSeeStudent(st models.Student) bool {
	if s.Admin {
		return true
	}
	for _, link := range st.Projects {
		if s.hasProject(link.ProjectID) {
			return true
		}
	}
	return false
}

// CanSeeAttendance reports whether the record is about a visible student,
// whichever project it was taken under.
func (s Scope) CanSeeAttendance(r models.AttendanceRecord) bool {
	return s.Admin || s.hasStudent(r.StudentID)
}

// CanSeeRequisition reports whether the actor submitted the requisition.
func (s Scope) CanSeeRequisition(r models.Requisition) bool {
	return s.Admin || (s.Email != "" && r.SubmittedBy == s.Email)
}

// CanSeeDeletionRequest reports whether the actor raised the request.
func (s Scope) CanSeeDeletionRequest(r models.DeletionRequest) bool {
	return s.Admin || (s.Email != "" && r.RequestedByEmail == s.Email)
}

// CanSeeNotification reports whether the notification targets the actor or is a broadcast.
func (s Scope) CanSeeNotification(n models.Notification) bool {
	if s.Admin || n.IsBroadcast() {
		return true
	}
	return s.Email != "" && *n.TargetUser == s.Email
}

// Projects filters a fetched list.
func (s Scope) Projects(list []models.Project) []models.Project {
	return keep(list, s.CanSeeProject)
}

// Students filters a fetched list.
func (s Scope) Students(list []models.Student) []models.Student {
	return keep(list, s.CanSeeStudent)
}

// Attendance filters a fetched list.
func (s Scope) Attendance(list []models.AttendanceRecord) []models.AttendanceRecord {
	return keep(list, s.CanSeeAttendance)
}

// Requisitions filters a fetched list.
func (s Scope) Requisitions(list []models.Requisition) []models.Requisition {
	return keep(list, s.CanSeeRequisition)
}

// DeletionRequests filters a fetched list.
func (s Scope) DeletionRequests(list []models.DeletionRequest) []models.DeletionRequest {
	return keep(list, s.CanSeeDeletionRequest)
}

// Notifications filters a fetched list.
func (s Scope) Notifications(list []models.Notification) []models.Notification {
	return keep(list, s.CanSeeNotification)
}

// ProjectFilter narrows a project query to the scope.
func (s Scope) ProjectFilter(f models.ProjectFilter) models.ProjectFilter {
	if !s.Admin {
		f.MemberID = s.MemberID
		// an empty member id would disable the filter; match nothing instead
		if f.MemberID == "" {
			f.MemberID = "-"
		}
	}
	return f
}

// StudentFilter narrows a student query to the scope.
func (s Scope) StudentFilter(f models.StudentFilter) models.StudentFilter {
	if !s.Admin {
		f.Scoped = true
		f.ProjectIDs = s.ProjectIDs
	}
	return f
}

// AttendanceFilter narrows an attendance query to students enrolled on the
// scope's projects.
func (s Scope) AttendanceFilter(f models.AttendanceFilter) models.AttendanceFilter {
	if !s.Admin {
		f.Scoped = true
		f.ProjectIDs = s.ProjectIDs
	}
	return f
}

// RequisitionFilter narrows a requisition query to the scope.
func (s Scope) RequisitionFilter(f models.RequisitionFilter) models.RequisitionFilter {
	if !s.Admin {
		f.SubmittedBy = s.Email
	}
	return f
}

// DeletionRequestFilter narrows a deletion request query to the scope.
func (s Scope) DeletionRequestFilter(f models.DeletionRequestFilter) models.DeletionRequestFilter {
	if !s.Admin {
		f.RequestedByEmail = s.Email
	}
	return f
}

// NotificationFilter narrows a notification listing to the scope.
func (s Scope) NotificationFilter(f models.NotificationFilter) models.NotificationFilter {
	if !s.Admin {
		f.Recipient = s.Email
		f.IncludeBroadcast = true
	}
	return f
}

func keep[T any](list []T, visible func(T) bool) []T {
	out := make([]T, 0, len(list))
	for _, item := range list {
		if visible(item) {
			out = append(out, item)
		}
	}
	return out
}

type projectLookup interface {
	IDsForMember(ctx context.Context, memberID string) ([]string, error)
	StudentIDs(ctx context.Context, projectIDs []string) ([]string, error)
}

type memberLookup interface {
	GetByID(ctx context.Context, id string) (*models.Member, error)
}

// Resolver builds scopes for authenticated actors.
type Resolver struct {
	projects projectLookup
	members  memberLookup
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithMemberStatus makes Resolve fail with ErrInactive for members that are
// no longer active.
func WithMemberStatus(members memberLookup) ResolverOption {
	return func(r *Resolver) {
		r.members = members
	}
}

// NewResolver constructs a Resolver.
func NewResolver(projects projectLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{projects: projects}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads the scope for actor. Members are resolved against their
// current project assignments and rosters on every call.
func (r *Resolver) Resolve(ctx context.Context, actor *models.JWTClaims) (Scope, error) {
	if actor == nil {
		return Scope{}, fmt.Errorf("resolve scope: no actor")
	}
	if actor.IsAdmin() {
		return ForAdmin(actor.Email), nil
	}
	if r.members != nil {
		member, err := r.members.GetByID(ctx, actor.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			return Scope{}, ErrInactive
		}
		if err != nil {
			return Scope{}, fmt.Errorf("resolve scope: %w", err)
		}
		if !member.IsActive() {
			return Scope{}, ErrInactive
		}
	}
	ids, err := r.projects.IDsForMember(ctx, actor.UserID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve scope: %w", err)
	}
	students, err := r.projects.StudentIDs(ctx, ids)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve scope: %w", err)
	}
	return ForMember(actor.UserID, actor.Email, ids).WithStudents(students), nil
}
