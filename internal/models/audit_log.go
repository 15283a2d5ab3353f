package models

// AuditLog records sensitive user operations and maintenance runs.
type AuditLog struct {
	Base
	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	Action       string `gorm:"not null" json:"action"`
	ResourceType string `gorm:"not null" json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	IPAddress    string `json:"ip_address"`
	Changes      string `json:"changes,omitempty"`
}

// SystemUserID attributes audit entries written by operator jobs.
const SystemUserID = "00000000-0000-0000-0000-000000000000"
