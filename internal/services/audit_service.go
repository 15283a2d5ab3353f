package services

import (
	"encoding/json"
	"reflect"

	"gorm.io/gorm"

	"zapgastos/internal/logger"
	"zapgastos/internal/models"
)

type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log records who changed what. Maintenance jobs pass an empty userID and are
// recorded as the system user. Write failures are logged only; an audit row
// never fails the operation it describes.
func (s *auditService) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]any) {
	if userID == "" {
		userID = models.SystemUserID
	}

	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      encodeChanges(action, changes),
	}

	if err := s.db.Create(entry).Error; err != nil {
		logger.Named("audit").Errorw("failed to write audit entry",
			"error", err,
			"user_id", userID,
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
		)
	}
}

// encodeChanges drops nil values (unset optional fields of a partial update)
// and returns "" when nothing is left.
func encodeChanges(action string, changes map[string]any) string {
	kept := make(map[string]any, len(changes))
	for k, v := range changes {
		if isNil(v) {
			continue
		}
		kept[k] = v
	}
	if len(kept) == 0 {
		return ""
	}
	data, err := json.Marshal(kept)
	if err != nil {
		logger.Named("audit").Warnw("unencodable audit changes", "action", action, "error", err)
		return "{}"
	}
	return string(data)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
