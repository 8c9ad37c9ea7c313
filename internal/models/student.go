package models

import "time"

// StudentStatus is derived from course membership.
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "active"
	StudentStatusInactive StudentStatus = "inactive"
)

// Student is created on the first approval of a request bearing its email.
type Student struct {
	ID             string        `db:"id" json:"id"`
	FirstName      string        `db:"first_name" json:"firstName"`
	LastName       string        `db:"last_name" json:"lastName"`
	Email          string        `db:"email" json:"email"`
	Phone          string        `db:"phone" json:"phone"`
	Status         StudentStatus `db:"status" json:"status"`
	StudentLevel   string        `db:"student_level" json:"studentLevel"`
	EnrollmentDate time.Time     `db:"enrollment_date" json:"enrollmentDate"`
	ApprovedDate   *time.Time    `db:"approved_date" json:"approvedDate,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`

	EnrolledCourses []Course `db:"-" json:"enrolledCourses"`
}

// StudentLookup is the result of finding a student by email.
type StudentLookup struct {
	Student *Student
	Found   bool
}

// StudentFound wraps an existing student.
func StudentFound(s *Student) StudentLookup {
	return StudentLookup{Student: s, Found: true}
}

// StudentNotFound is the empty lookup result.
func StudentNotFound() StudentLookup {
	return StudentLookup{}
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Status   StudentStatus
	Level    string
	Search   string
	Page     int
	PageSize int
}

// StudentCourse is one membership row joined with its course.
type StudentCourse struct {
	StudentID string `db:"student_id"`
	Course
}
