package models

import "time"

// RequestStatus is the state of an enrollment request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// EnrollmentRequest is an applicant's ask to join a course.
type EnrollmentRequest struct {
	ID           string        `db:"id" json:"id"`
	FirstName    string        `db:"first_name" json:"firstName"`
	LastName     string        `db:"last_name" json:"lastName"`
	Email        string        `db:"email" json:"email"`
	Phone        string        `db:"phone" json:"phone"`
	Age          int           `db:"age" json:"age"`
	Comment      string        `db:"comment" json:"comment"`
	CourseID     string        `db:"course_id" json:"courseId"`
	StudentLevel string        `db:"student_level" json:"studentLevel"`
	Status       RequestStatus `db:"status" json:"status"`
	Version      int           `db:"version" json:"version"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	ApprovedDate *time.Time    `db:"approved_date" json:"approvedDate"`
	RejectedDate *time.Time    `db:"rejected_date" json:"rejectedDate"`
}

// DecisionDatesConsistent checks that exactly the timestamp matching the status is set.
func (r EnrollmentRequest) DecisionDatesConsistent() bool {
	switch r.Status {
	case RequestStatusPending:
		return r.ApprovedDate == nil && r.RejectedDate == nil
	case RequestStatusApproved:
		return r.ApprovedDate != nil && r.RejectedDate == nil
	case RequestStatusRejected:
		return r.RejectedDate != nil && r.ApprovedDate == nil
	}
	return false
}

// RequestDetail is a request expanded with its current course.
type RequestDetail struct {
	EnrollmentRequest
	Course *Course `db:"-" json:"course"`
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status   RequestStatus
	CourseID string
	Email    string
	Page     int
	PageSize int
}
