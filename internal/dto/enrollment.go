package dto

// SubmitEnrollmentRequest is the public enrollment form.
type SubmitEnrollmentRequest struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"max=40"`
	Age          int    `json:"age" validate:"gte=0,lte=150"`
	Comment      string `json:"comment" validate:"max=2000"`
	CourseID     string `json:"courseId" validate:"required"`
	StudentLevel string `json:"studentLevel" validate:"max=50"`
}

// CheckEnrollmentRequest asks whether an email is enrolled in a course.
type CheckEnrollmentRequest struct {
	Email    string `json:"email" validate:"required,email"`
	CourseID string `json:"courseId" validate:"required"`
}

// CheckEnrollmentResponse answers CheckEnrollmentRequest.
type CheckEnrollmentResponse struct {
	Enrolled bool `json:"enrolled"`
}

// DecisionRequest carries the optional comment and expected version of approve/reject.
type DecisionRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
	Version *int   `json:"version,omitempty" validate:"omitempty,gte=1"`
}

// ChangeStatusRequest flips a decided request.
type ChangeStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
	Version *int   `json:"version,omitempty" validate:"omitempty,gte=1"`
}

// AssignCourseRequest moves a request to another course.
type AssignCourseRequest struct {
	NewCourseID string `json:"newCourseId"`
	Comment     string `json:"comment" validate:"max=2000"`
	Version     *int   `json:"version,omitempty" validate:"omitempty,gte=1"`
}

// NotificationSettingResponse reports the admin email toggle.
type NotificationSettingResponse struct {
	Enabled bool `json:"enabled"`
}

// UpdateNotificationSettingRequest sets the admin email toggle.
type UpdateNotificationSettingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
