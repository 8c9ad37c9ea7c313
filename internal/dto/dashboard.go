package dto

import (
	"time"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Courses        CourseTotals           `json:"courses"`
	Students       StudentTotals          `json:"students"`
	Requests       RequestTotals          `json:"requests"`
	CoursesByLevel []LevelCount           `json:"coursesByLevel"`
	RecentRequests []models.RequestDetail `json:"recentRequests"`
	GeneratedAt    time.Time              `json:"generatedAt"`
}

// CourseTotals summarises the catalog.
type CourseTotals struct {
	Total         int `json:"total"`
	Open          int `json:"open"`
	EnrolledSeats int `json:"enrolledSeats"`
	Waitlisted    int `json:"waitlisted"`
}

// StudentTotals summarises the roster.
type StudentTotals struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// RequestTotals counts requests by status.
type RequestTotals struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// LevelCount is the number of courses at one level.
type LevelCount struct {
	Level string `json:"level" db:"level"`
	Count int    `json:"count" db:"count"`
}
