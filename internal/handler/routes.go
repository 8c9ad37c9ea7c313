package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/middleware"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth        *AuthHandler
	Courses     *CourseHandler
	Enrollments *EnrollmentHandler
	Requests    *RequestHandler
	Students    *StudentHandler
	Admin       *AdminHandler
	Dashboard   *DashboardHandler
	Exports     *ExportHandler
}

// Register mounts public and admin routes on group.
func Register(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, logger *zap.Logger) {
	group.POST("/auth/login", h.Auth.Login)
	group.GET("/courses", h.Courses.List)
	group.GET("/courses/:id", h.Courses.Get)
	group.POST("/enroll", h.Enrollments.Submit)
	group.POST("/check-enrollment", h.Enrollments.CheckEnrollment)
	group.GET("/exports/download", h.Exports.Download)

	admin := group.Group("")
	admin.Use(middleware.RequireAdmin(tokens))

	admin.GET("/auth/me", h.Auth.Me)
	admin.GET("/dashboard", h.Dashboard.Admin)

	courses := admin.Group("/courses")
	courses.Use(middleware.Audit(logger, "course"))
	courses.GET("/canvas/:sisId", h.Courses.Canvas)
	courses.POST("", h.Courses.Create)
	courses.PUT("/:id", h.Courses.Update)
	courses.DELETE("/:id", h.Courses.Delete)

	admin.GET("/students", h.Students.List)
	admin.GET("/students/:id", h.Students.Get)

	requests := admin.Group("/requests")
	requests.Use(middleware.Audit(logger, "enrollment_request"))
	requests.GET("", h.Requests.List)
	requests.GET("/:id", h.Requests.Get)
	requests.POST("/:id/approve", h.Requests.Approve)
	requests.POST("/:id/reject", h.Requests.Reject)
	requests.PUT("/:id/status", h.Requests.ChangeStatus)
	requests.PUT("/:id/assign-course", h.Requests.AssignCourse)

	settings := admin.Group("/admin")
	settings.Use(middleware.Audit(logger, "notification_setting"))
	settings.GET("/notifications", h.Admin.GetNotifications)
	settings.POST("/notifications", h.Admin.SetNotifications)

	admin.GET("/exports/:dataset", h.Exports.Export)
}
