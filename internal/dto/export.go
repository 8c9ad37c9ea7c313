package dto

import "time"

// ExportResult references a freshly written snapshot file.
type ExportResult struct {
	Success   bool      `json:"success"`
	File      string    `json:"file"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expiresAt"`
}
