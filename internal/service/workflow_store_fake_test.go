package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
)

// memState is a copy-on-transaction snapshot of the three aggregates.
type memState struct {
	courses  map[string]models.Course
	requests map[string]models.EnrollmentRequest
	students map[string]models.Student
	members  map[string]map[string]bool
}

func (s *memState) clone() *memState {
	out := &memState{
		courses:  make(map[string]models.Course, len(s.courses)),
		requests: make(map[string]models.EnrollmentRequest, len(s.requests)),
		students: make(map[string]models.Student, len(s.students)),
		members:  make(map[string]map[string]bool, len(s.members)),
	}
	for k, v := range s.courses {
		out.courses[k] = v
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, v := range s.students {
		out.students[k] = v
	}
	for k, v := range s.members {
		set := make(map[string]bool, len(v))
		for c := range v {
			set[c] = true
		}
		out.members[k] = set
	}
	return out
}

type memStore struct {
	mu     sync.Mutex
	state  *memState
	seq    int
	failOn string
}

func newMemStore(courses ...models.Course) *memStore {
	st := &memState{
		courses:  map[string]models.Course{},
		requests: map[string]models.EnrollmentRequest{},
		students: map[string]models.Student{},
		members:  map[string]map[string]bool{},
	}
	for _, c := range courses {
		if c.Status == "" {
			c.Status = models.CourseStatusOpen
		}
		st.courses[c.ID] = c
	}
	return &memStore{state: st}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx repository.WorkflowTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memTx{store: m, s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) course(id string) models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.courses[id]
}

func (m *memStore) request(id string) models.EnrollmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.requests[id]
}

func (m *memStore) studentByEmail(email string) (models.Student, []string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.state.students {
		if s.Email == email {
			courses := make([]string, 0)
			for c := range m.state.members[s.ID] {
				courses = append(courses, c)
			}
			sort.Strings(courses)
			return s, courses, true
		}
	}
	return models.Student{}, nil, false
}

func (m *memStore) approvedCount(courseID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.state.requests {
		if r.CourseID == courseID && r.Status == models.RequestStatusApproved {
			n++
		}
	}
	return n
}

// requestReader, courseLookup and enrollmentChecker over the committed state.

func (m *memStore) List(_ context.Context, filter models.RequestFilter) ([]models.EnrollmentRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]models.EnrollmentRequest, 0, len(m.state.requests))
	for _, r := range m.state.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.CourseID != "" && r.CourseID != filter.CourseID {
			continue
		}
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, len(items), nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*models.EnrollmentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *memStore) GetByIDs(_ context.Context, ids []string) (map[string]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Course, len(ids))
	for _, id := range ids {
		if c, ok := m.state.courses[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (m *memStore) IsEnrolled(_ context.Context, email, courseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.state.students {
		if s.Email == email {
			return m.state.members[s.ID][courseID], nil
		}
	}
	return false, nil
}

type memTx struct {
	store *memStore
	s     *memState
}

var errInjected = errors.New("injected store failure")

func (t *memTx) fail(op string) error {
	if t.store.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) nextID(prefix string) string {
	t.store.seq++
	return fmt.Sprintf("%s-%d", prefix, t.store.seq)
}

func (t *memTx) GetRequest(_ context.Context, id string) (*models.EnrollmentRequest, error) {
	r, ok := t.s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (t *memTx) CreateRequest(_ context.Context, req *models.EnrollmentRequest) error {
	if err := t.fail("CreateRequest"); err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = t.nextID("req")
	}
	req.Version = 1
	req.Status = models.RequestStatusPending
	t.s.requests[req.ID] = *req
	return nil
}

func (t *memTx) UpdateRequestDecision(_ context.Context, req *models.EnrollmentRequest, expectedVersion int) error {
	if err := t.fail("UpdateRequestDecision"); err != nil {
		return err
	}
	stored, ok := t.s.requests[req.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrStaleVersion
	}
	stored.Status = req.Status
	stored.ApprovedDate = req.ApprovedDate
	stored.RejectedDate = req.RejectedDate
	stored.Version = expectedVersion + 1
	t.s.requests[req.ID] = stored
	req.Version = stored.Version
	return nil
}

func (t *memTx) UpdateRequestCourse(_ context.Context, id string, expectedVersion int, courseID string) error {
	stored, ok := t.s.requests[id]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrStaleVersion
	}
	stored.CourseID = courseID
	stored.Version++
	t.s.requests[id] = stored
	return nil
}

func (t *memTx) GetCourse(_ context.Context, id string) (*models.Course, error) {
	c, ok := t.s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (t *memTx) AdjustCourseCounters(_ context.Context, courseID string, students, waitlist int) error {
	if err := t.fail("AdjustCourseCounters"); err != nil {
		return err
	}
	c, ok := t.s.courses[courseID]
	if !ok || c.Students+students < 0 {
		return repository.ErrCounterUnderflow
	}
	c.Students += students
	c.Waitlist += waitlist
	if c.Waitlist < 0 {
		c.Waitlist = 0
	}
	t.s.courses[courseID] = c
	return nil
}

func (t *memTx) SetCourseCounters(_ context.Context, courseID string, students, waitlist int) error {
	c := t.s.courses[courseID]
	c.Students, c.Waitlist = students, waitlist
	t.s.courses[courseID] = c
	return nil
}

func (t *memTx) FindStudentByEmail(_ context.Context, email string) (models.StudentLookup, error) {
	for _, s := range t.s.students {
		if s.Email == email {
			s := s
			return models.StudentFound(&s), nil
		}
	}
	return models.StudentNotFound(), nil
}

func (t *memTx) CreateStudent(_ context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = t.nextID("stu")
	}
	t.s.students[student.ID] = *student
	return nil
}

func (t *memTx) RefreshStudent(_ context.Context, student *models.Student) error {
	t.s.students[student.ID] = *student
	return nil
}

func (t *memTx) AddStudentCourse(_ context.Context, studentID, courseID string) error {
	if err := t.fail("AddStudentCourse"); err != nil {
		return err
	}
	if t.s.members[studentID] == nil {
		t.s.members[studentID] = map[string]bool{}
	}
	t.s.members[studentID][courseID] = true
	return nil
}

func (t *memTx) RemoveStudentCourse(_ context.Context, studentID, courseID string) error {
	delete(t.s.members[studentID], courseID)
	return nil
}

func (t *memTx) CountStudentCourses(_ context.Context, studentID string) (int, error) {
	return len(t.s.members[studentID]), nil
}

func (t *memTx) SetStudentStatus(_ context.Context, studentID string, status models.StudentStatus) error {
	s := t.s.students[studentID]
	s.Status = status
	t.s.students[studentID] = s
	return nil
}

func (t *memTx) CountApprovedRequests(_ context.Context, email, courseID, excludeID string) (int, error) {
	n := 0
	for _, r := range t.s.requests {
		if r.Email == email && r.CourseID == courseID && r.Status == models.RequestStatusApproved && r.ID != excludeID {
			n++
		}
	}
	return n, nil
}

// AuditCounters derives the counter audit from the committed state.
func (m *memStore) AuditCounters(_ context.Context) ([]repository.CounterAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.state.courses))
	for id := range m.state.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]repository.CounterAudit, 0, len(ids))
	for _, id := range ids {
		c := m.state.courses[id]
		row := repository.CounterAudit{CourseID: id, Title: c.Title, Students: c.Students, Waitlist: c.Waitlist}
		for _, r := range m.state.requests {
			if r.CourseID != id {
				continue
			}
			switch r.Status {
			case models.RequestStatusApproved:
				row.ApprovedCount++
			case models.RequestStatusPending:
				row.PendingCount++
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memStore) setCounters(courseID string, students, waitlist int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.state.courses[courseID]
	c.Students, c.Waitlist = students, waitlist
	m.state.courses[courseID] = c
}
