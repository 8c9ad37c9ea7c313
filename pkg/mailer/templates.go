package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
)

// Template names the embedded email layouts.
type Template string

const (
	TemplateSubmission Template = "submission"
	TemplateApproval   Template = "approval"
	TemplateRejection  Template = "rejection"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	parsed    *template.Template
	parseErr  error
	parseOnce sync.Once
)

// CourseData is the course view rendered into emails.
type CourseData struct {
	Title       string
	Level       string
	Duration    string
	Term        string
	Year        int
	StartDate   string
	EndDate     string
	Location    string
	MeetingTime string
	Instructor  string
}

// RequestData is the applicant view rendered into the admin email.
type RequestData struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Age          int
	StudentLevel string
	Comment      string
}

// Data carries everything a template may reference.
type Data struct {
	Request     RequestData
	Course      CourseData
	Comment     string
	FrontendURL string
	Signature   string
}

// Render executes the named template and returns the subject and HTML body.
func Render(name Template, data Data) (string, string, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.ParseFS(templateFS, "templates/*.html")
	})
	if parseErr != nil {
		return "", "", fmt.Errorf("parse email templates: %w", parseErr)
	}
	if data.Signature == "" {
		data.Signature = "Language Center"
	}

	var buf bytes.Buffer
	if err := parsed.ExecuteTemplate(&buf, string(name)+".html", data); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", name, err)
	}
	return subject(name, data), buf.String(), nil
}

func subject(name Template, data Data) string {
	switch name {
	case TemplateSubmission:
		return fmt.Sprintf("New Enrollment Request: %s %s", data.Request.FirstName, data.Request.LastName)
	case TemplateApproval:
		return fmt.Sprintf("Enrollment Approved: %s", data.Course.Title)
	case TemplateRejection:
		return fmt.Sprintf("Enrollment Update: %s", data.Course.Title)
	default:
		return string(name)
	}
}
