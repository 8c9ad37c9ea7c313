package models

import "time"

// SettingType defines supported types for setting values.
type SettingType string

const (
	SettingTypeString  SettingType = "STRING"
	SettingTypeBoolean SettingType = "BOOLEAN"
)

// SettingAdminNotifications gates submission and approval emails.
const SettingAdminNotifications = "admin_notifications_enabled"

// Setting represents a persisted key/value entry.
type Setting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description string      `db:"description" json:"description,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}
