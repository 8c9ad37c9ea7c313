package models

import "time"

// CourseLevel is the proficiency band a course targets.
type CourseLevel string

const (
	CourseLevelBeginner     CourseLevel = "Beginner"
	CourseLevelIntermediate CourseLevel = "Intermediate"
	CourseLevelAdvanced     CourseLevel = "Advanced"
)

// Valid reports whether the level is one of the known bands.
func (l CourseLevel) Valid() bool {
	switch l {
	case CourseLevelBeginner, CourseLevelIntermediate, CourseLevelAdvanced:
		return true
	}
	return false
}

// CourseStatus marks whether a course accepts new requests.
type CourseStatus string

const (
	CourseStatusOpen   CourseStatus = "open"
	CourseStatusClosed CourseStatus = "closed"
)

// Course is a catalog entry. Students and Waitlist are owned by the enrollment workflow.
type Course struct {
	ID          string       `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Level       CourseLevel  `db:"level" json:"level"`
	Duration    string       `db:"duration" json:"duration"`
	Department  string       `db:"department" json:"department"`
	Status      CourseStatus `db:"status" json:"status"`
	Term        string       `db:"term" json:"term"`
	Year        int          `db:"year" json:"year"`
	StartDate   string       `db:"start_date" json:"startDate"`
	EndDate     string       `db:"end_date" json:"endDate"`
	StartTime   *string      `db:"start_time" json:"startTime,omitempty"`
	EndTime     *string      `db:"end_time" json:"endTime,omitempty"`
	MeetingTime *string      `db:"meeting_time" json:"meetingTime,omitempty"`
	Location    *string      `db:"location" json:"location,omitempty"`
	MaxStudents *int         `db:"max_students" json:"maxStudents,omitempty"`
	Students    int          `db:"students" json:"students"`
	Waitlist    int          `db:"waitlist" json:"waitlist"`
	Description *string      `db:"description" json:"description,omitempty"`
	Instructor  *string      `db:"instructor" json:"instructor,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updatedAt"`

	Attachments []Attachment `db:"-" json:"attachments"`
}

// IsFull reports whether the course has reached its advisory seat limit.
func (c Course) IsFull() bool {
	return c.MaxStudents != nil && c.Students >= *c.MaxStudents
}

// Attachment references an uploaded or external course document.
type Attachment struct {
	ID       string `db:"id" json:"id,omitempty"`
	CourseID string `db:"course_id" json:"-"`
	Position int    `db:"position" json:"-"`
	Name     string `db:"name" json:"name"`
	URL      string `db:"url" json:"url"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Status CourseStatus
	Level  CourseLevel
	Search string
}
