package models

import (
	"gorm.io/gorm"
)

const (
	AuditVerifyDoctor    = "VERIFY_DOCTOR"
	AuditRejectDoctor    = "REJECT_DOCTOR"
	AuditSuspendDoctor   = "SUSPEND_DOCTOR"
	AuditUnsuspendDoctor = "UNSUSPEND_DOCTOR"
	AuditEditDoctor      = "EDIT_DOCTOR"
	AuditUpdateReport    = "UPDATE_REPORT"
)

// AdminAuditLog records admin-initiated transitions. Written after the state
// mutation commits; never written for doctor- or patient-initiated actions.
type AdminAuditLog struct {
	gorm.Model
	AdminID    uint   `gorm:"column:admin_id;not null;index" json:"admin_id"`
	ActionType string `gorm:"column:action_type;size:50;not null" json:"action_type"`
	TargetType string `gorm:"column:target_type;size:50;default:'DOCTOR'" json:"target_type"`
	TargetID   uint   `gorm:"column:target_id;not null;index" json:"target_id"`
	Note       string `gorm:"column:note;type:text" json:"note,omitempty"`
	Metadata   string `gorm:"column:metadata;type:text" json:"metadata,omitempty"`

	Admin *User `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
}
