// Package canvas looks up courses in a Canvas LMS instance.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/course-enrollment-api/pkg/config"
)

// ErrNotFound is returned when Canvas has no course for the SIS id.
var ErrNotFound = errors.New("canvas course not found")

// Course is the subset of the Canvas course object surfaced to admins.
type Course struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	CourseCode    string     `json:"course_code"`
	SISCourseID   string     `json:"sis_course_id"`
	WorkflowState string     `json:"workflow_state"`
	StartAt       *time.Time `json:"start_at"`
	EndAt         *time.Time `json:"end_at"`
	TimeZone      string     `json:"time_zone,omitempty"`
}

// Client calls the Canvas REST API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client from configuration.
func NewClient(cfg config.CanvasConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// CourseBySISID fetches /api/v1/courses/sis_course_id:{sisID}.
func (c *Client) CourseBySISID(ctx context.Context, sisID string) (*Course, error) {
	sisID = strings.TrimSpace(sisID)
	if sisID == "" {
		return nil, fmt.Errorf("sis id required")
	}
	if c.baseURL == "" || c.token == "" {
		return nil, fmt.Errorf("canvas integration not configured")
	}

	endpoint := fmt.Sprintf("%s/api/v1/courses/sis_course_id:%s", c.baseURL, url.PathEscape(sisID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build canvas request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("canvas request: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case res.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("canvas responded %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var course Course
	if err := json.NewDecoder(res.Body).Decode(&course); err != nil {
		return nil, fmt.Errorf("decode canvas course: %w", err)
	}
	return &course, nil
}
