package dto

// CourseInput holds the admin-editable course fields.
type CourseInput struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Level       string            `json:"level" validate:"required,oneof=Beginner Intermediate Advanced"`
	Duration    string            `json:"duration" validate:"max=100"`
	Department  string            `json:"department" validate:"max=100"`
	Status      string            `json:"status" validate:"omitempty,oneof=open closed"`
	Term        string            `json:"term" validate:"max=50"`
	Year        int               `json:"year" validate:"gte=0,lte=9999"`
	StartDate   string            `json:"startDate"`
	EndDate     string            `json:"endDate"`
	StartTime   *string           `json:"startTime"`
	EndTime     *string           `json:"endTime"`
	MeetingTime *string           `json:"meetingTime"`
	Location    *string           `json:"location"`
	MaxStudents *int              `json:"maxStudents" validate:"omitempty,gte=0"`
	Description *string           `json:"description"`
	Instructor  *string           `json:"instructor"`
	Attachments []AttachmentInput `json:"attachments" validate:"dive"`
}

// AttachmentInput is a pre-existing {name,url} reference supplied by the client.
type AttachmentInput struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
}
