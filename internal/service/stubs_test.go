package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/institute-backoffice-api/internal/models"
	"github.com/noah-isme/institute-backoffice-api/internal/realtime"
	"github.com/noah-isme/institute-backoffice-api/internal/repository"
	"github.com/noah-isme/institute-backoffice-api/internal/visibility"
)

var errStubDown = errors.New("database unavailable")

func adminScope() visibility.Scope {
	return visibility.ForAdmin("admin@institute.test")
}

func memberScope(id, email string, projectIDs ...string) visibility.Scope {
	return visibility.ForMember(id, email, projectIDs)
}

type publisherStub struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *publisherStub) Publish(ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *publisherStub) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Table)
	}
	return out
}

type studentRepoStub struct {
	students   map[string]models.Student
	lastFilter models.StudentFilter
	deleted    []string
	seq        int
}

func newStudentRepoStub(students ...models.Student) *studentRepoStub {
	stub := &studentRepoStub{students: make(map[string]models.Student)}
	for _, s := range students {
		if s.Version == 0 {
			s.Version = 1
		}
		stub.students[s.ID] = s
	}
	return stub
}

func cloneStudent(s models.Student) *models.Student {
	s.Projects = append([]models.StudentProject(nil), s.Projects...)
	return &s
}

func (m *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if filter.Scoped && len(filter.ProjectIDs) == 0 {
		return []models.Student{}, 0, nil
	}
	ids := make([]string, 0, len(m.students))
	for id := range m.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []models.Student{}
	for _, id := range ids {
		s := m.students[id]
		if filter.Scoped && !intersects(s.ProjectIDs(), filter.ProjectIDs) {
			continue
		}
		out = append(out, *cloneStudent(s))
	}
	return out, len(out), nil
}

func (m *studentRepoStub) GetByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneStudent(s), nil
}

func (m *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		m.seq++
		student.ID = fmt.Sprintf("student-%d", m.seq)
	}
	student.Version = 1
	now := time.Now().UTC()
	student.CreatedAt, student.UpdatedAt = now, now
	for i := range student.Projects {
		student.Projects[i].StudentID = student.ID
		student.Projects[i].AssignedDate = now
	}
	m.students[student.ID] = *cloneStudent(*student)
	return nil
}

func (m *studentRepoStub) Update(ctx context.Context, student *models.Student) error {
	stored, ok := m.students[student.ID]
	if !ok || stored.Version != student.Version {
		return sql.ErrNoRows
	}
	student.Version++
	m.students[student.ID] = *cloneStudent(*student)
	return nil
}

func (m *studentRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *studentRepoStub) AssignProject(ctx context.Context, studentID, projectID string, assignedAt time.Time) error {
	s, ok := m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	for _, link := range s.Projects {
		if link.ProjectID == projectID {
			return nil
		}
	}
	s.Projects = append(s.Projects, models.StudentProject{StudentID: studentID, ProjectID: projectID, AssignedDate: assignedAt})
	m.students[studentID] = s
	return nil
}

func (m *studentRepoStub) UnassignProject(ctx context.Context, studentID, projectID string) error {
	s, ok := m.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	for i, link := range s.Projects {
		if link.ProjectID == projectID {
			s.Projects = append(s.Projects[:i:i], s.Projects[i+1:]...)
			m.students[studentID] = s
			return nil
		}
	}
	return sql.ErrNoRows
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type projectRepoStub struct {
	projects map[string]models.Project
	rosters  map[string][]string
	members  *memberRepoStub
	seq      int
}

func newProjectRepoStub(projects ...models.Project) *projectRepoStub {
	stub := &projectRepoStub{projects: make(map[string]models.Project), rosters: make(map[string][]string)}
	for _, p := range projects {
		if p.Version == 0 {
			p.Version = 1
		}
		stub.projects[p.ID] = p
	}
	return stub
}

func cloneProject(p models.Project) *models.Project {
	p.AssignedMembers = append([]string(nil), p.AssignedMembers...)
	return &p
}

func (m *projectRepoStub) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	out := []models.Project{}
	for _, p := range m.projects {
		if filter.MemberID != "" && !p.HasMember(filter.MemberID) {
			continue
		}
		out = append(out, *cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *projectRepoStub) GetByID(ctx context.Context, id string) (*models.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneProject(p), nil
}

func (m *projectRepoStub) IDsForMember(ctx context.Context, memberID string) ([]string, error) {
	ids := []string{}
	for id, p := range m.projects {
		if p.HasMember(memberID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *projectRepoStub) StudentIDs(ctx context.Context, projectIDs []string) ([]string, error) {
	seen := map[string]bool{}
	ids := []string{}
	for _, p := range projectIDs {
		for _, id := range m.rosters[p] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *projectRepoStub) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		m.seq++
		project.ID = fmt.Sprintf("project-%d", m.seq)
	}
	project.Version = 1
	m.projects[project.ID] = *cloneProject(*project)
	return nil
}

func (m *projectRepoStub) Update(ctx context.Context, project *models.Project) error {
	stored, ok := m.projects[project.ID]
	if !ok || stored.Version != project.Version {
		return sql.ErrNoRows
	}
	project.Version++
	m.projects[project.ID] = *cloneProject(*project)
	return nil
}

func (m *projectRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := m.projects[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.projects, id)
	return nil
}

func (m *projectRepoStub) AssignMember(ctx context.Context, projectID, memberID string) error {
	p, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	if !p.HasMember(memberID) {
		p.AssignedMembers = append(p.AssignedMembers, memberID)
		m.projects[projectID] = p
	}
	return nil
}

func (m *projectRepoStub) UnassignMember(ctx context.Context, projectID, memberID string) error {
	p, ok := m.projects[projectID]
	if !ok || !p.HasMember(memberID) {
		return sql.ErrNoRows
	}
	kept := p.AssignedMembers[:0:0]
	for _, id := range p.AssignedMembers {
		if id != memberID {
			kept = append(kept, id)
		}
	}
	p.AssignedMembers = kept
	m.projects[projectID] = p
	return nil
}

type memberRepoStub struct {
	members map[string]models.Member
	seq     int
}

func newMemberRepoStub(members ...models.Member) *memberRepoStub {
	stub := &memberRepoStub{members: make(map[string]models.Member)}
	for _, mem := range members {
		if mem.Version == 0 {
			mem.Version = 1
		}
		stub.members[mem.ID] = mem
	}
	return stub
}

func (m *memberRepoStub) List(ctx context.Context, filter models.MemberFilter) ([]models.Member, error) {
	out := []models.Member{}
	for _, mem := range m.members {
		if filter.Status != "" && mem.Status != filter.Status {
			continue
		}
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memberRepoStub) GetByID(ctx context.Context, id string) (*models.Member, error) {
	mem, ok := m.members[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &mem, nil
}

func (m *memberRepoStub) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	for _, mem := range m.members {
		if strings.EqualFold(mem.Email, email) {
			found := mem
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memberRepoStub) emailTaken(email, exceptID string) bool {
	for id, mem := range m.members {
		if id != exceptID && strings.EqualFold(mem.Email, email) {
			return true
		}
	}
	return false
}

func (m *memberRepoStub) Create(ctx context.Context, member *models.Member) error {
	if m.emailTaken(member.Email, "") {
		return repository.ErrDuplicate
	}
	if member.ID == "" {
		m.seq++
		member.ID = fmt.Sprintf("member-%d", m.seq)
	}
	member.Version = 1
	m.members[member.ID] = *member
	return nil
}

func (m *memberRepoStub) Update(ctx context.Context, member *models.Member) error {
	stored, ok := m.members[member.ID]
	if !ok || stored.Version != member.Version {
		return sql.ErrNoRows
	}
	if m.emailTaken(member.Email, member.ID) {
		return repository.ErrDuplicate
	}
	member.Version++
	m.members[member.ID] = *member
	return nil
}

func (m *memberRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := m.members[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.members, id)
	return nil
}

type deletionRepoStub struct {
	requests   map[string]models.DeletionRequest
	students   *studentRepoStub
	approveErr error
	seq        int
}

func newDeletionRepoStub(students *studentRepoStub) *deletionRepoStub {
	return &deletionRepoStub{requests: make(map[string]models.DeletionRequest), students: students}
}

func (m *deletionRepoStub) List(ctx context.Context, filter models.DeletionRequestFilter) ([]models.DeletionRequest, error) {
	out := []models.DeletionRequest{}
	for _, r := range m.requests {
		if filter.RequestedByEmail != "" && r.RequestedByEmail != filter.RequestedByEmail {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *deletionRepoStub) GetByID(ctx context.Context, id string) (*models.DeletionRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *deletionRepoStub) Create(ctx context.Context, request *models.DeletionRequest) error {
	m.seq++
	request.ID = fmt.Sprintf("deletion-%d", m.seq)
	request.Status = models.DeletionPending
	request.RequestDate = time.Now().UTC()
	m.requests[request.ID] = *request
	return nil
}

func (m *deletionRepoStub) decide(decision repository.DeletionDecision, status models.DeletionRequestStatus) error {
	r, ok := m.requests[decision.ID]
	if !ok || r.Status != models.DeletionPending {
		return sql.ErrNoRows
	}
	adminEmail := decision.AdminEmail
	responseDate := decision.ResponseDate
	r.Status = status
	r.AdminResponse = decision.Response
	r.AdminEmail = &adminEmail
	r.ResponseDate = &responseDate
	m.requests[r.ID] = r
	return nil
}

// Approve mirrors the transactional repository: nothing changes unless both
// the status update and the student delete succeed.
func (m *deletionRepoStub) Approve(ctx context.Context, studentID string, decision repository.DeletionDecision) error {
	if m.approveErr != nil {
		return m.approveErr
	}
	r, ok := m.requests[decision.ID]
	if !ok || r.Status != models.DeletionPending {
		return sql.ErrNoRows
	}
	if _, ok := m.students.students[studentID]; !ok {
		return repository.ErrStudentMissing
	}
	if err := m.decide(decision, models.DeletionApproved); err != nil {
		return err
	}
	return m.students.Delete(ctx, studentID)
}

func (m *deletionRepoStub) Reject(ctx context.Context, decision repository.DeletionDecision) error {
	return m.decide(decision, models.DeletionRejected)
}

type requisitionRepoStub struct {
	requisitions map[string]models.Requisition
	seq          int
}

func newRequisitionRepoStub() *requisitionRepoStub {
	return &requisitionRepoStub{requisitions: make(map[string]models.Requisition)}
}

func (m *requisitionRepoStub) List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, error) {
	out := []models.Requisition{}
	for _, r := range m.requisitions {
		if filter.SubmittedBy != "" && r.SubmittedBy != filter.SubmittedBy {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *requisitionRepoStub) GetByID(ctx context.Context, id string) (*models.Requisition, error) {
	r, ok := m.requisitions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *requisitionRepoStub) Create(ctx context.Context, requisition *models.Requisition) error {
	m.seq++
	requisition.ID = fmt.Sprintf("requisition-%d", m.seq)
	requisition.Status = models.RequisitionPending
	requisition.Version = 1
	requisition.SubmittedDate = time.Now().UTC()
	m.requisitions[requisition.ID] = *requisition
	return nil
}

func (m *requisitionRepoStub) Update(ctx context.Context, requisition *models.Requisition) error {
	stored, ok := m.requisitions[requisition.ID]
	if !ok || stored.Version != requisition.Version {
		return sql.ErrNoRows
	}
	requisition.Version++
	m.requisitions[requisition.ID] = *requisition
	return nil
}

func (m *requisitionRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := m.requisitions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.requisitions, id)
	return nil
}

func (m *requisitionRepoStub) UpdateStatus(ctx context.Context, params repository.RequisitionReviewParams) error {
	r, ok := m.requisitions[params.ID]
	if !ok || r.Status != params.From {
		return sql.ErrNoRows
	}
	r.Status = params.To
	r.ReviewedBy = params.ReviewedBy
	r.ReviewedDate = params.ReviewedDate
	r.ReviewNotes = params.ReviewNotes
	r.Version++
	m.requisitions[r.ID] = r
	return nil
}

type notificationRepoStub struct {
	notifications []models.Notification
	createErr     error
	seq           int
}

func (m *notificationRepoStub) matches(n models.Notification, filter models.NotificationFilter) bool {
	if filter.Type != "" && n.Type != filter.Type {
		return false
	}
	if filter.Unread && n.IsRead {
		return false
	}
	if filter.Recipient == "" {
		return true
	}
	if n.TargetUser == nil {
		return filter.IncludeBroadcast
	}
	return *n.TargetUser == filter.Recipient
}

func (m *notificationRepoStub) Create(ctx context.Context, notification *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	if notification.ID == "" {
		notification.ID = fmt.Sprintf("notification-%d", m.seq)
	}
	notification.CreatedAt = time.Now().UTC()
	m.notifications = append(m.notifications, *notification)
	return nil
}

func (m *notificationRepoStub) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	for _, n := range m.notifications {
		if n.ID == id {
			found := n
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *notificationRepoStub) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	out := []models.Notification{}
	for _, n := range m.notifications {
		if m.matches(n, filter) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *notificationRepoStub) CountUnread(ctx context.Context, filter models.NotificationFilter) (int, error) {
	filter.Unread = true
	list, _ := m.List(ctx, filter)
	return len(list), nil
}

func (m *notificationRepoStub) MarkRead(ctx context.Context, id string) error {
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].IsRead = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *notificationRepoStub) MarkAllRead(ctx context.Context, filter models.NotificationFilter) (int64, error) {
	var updated int64
	for i := range m.notifications {
		if !m.notifications[i].IsRead && m.matches(m.notifications[i], filter) {
			m.notifications[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (m *notificationRepoStub) Delete(ctx context.Context, id string) error {
	for i, n := range m.notifications {
		if n.ID == id {
			m.notifications = append(m.notifications[:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *notificationRepoStub) DeleteAll(ctx context.Context, filter models.NotificationFilter) (int64, error) {
	kept := m.notifications[:0]
	var deleted int64
	for _, n := range m.notifications {
		if m.matches(n, filter) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

func (m *notificationRepoStub) targetedAt(target string) []models.Notification {
	out := []models.Notification{}
	for _, n := range m.notifications {
		if n.TargetUser != nil && *n.TargetUser == target {
			out = append(out, n)
		}
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
