package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotificationAppointment  = "APPOINTMENT"
	NotificationPayment      = "PAYMENT"
	NotificationPrescription = "PRESCRIPTION"
	NotificationChat         = "CHAT"
	NotificationVerification = "VERIFICATION"
	NotificationSystem       = "SYSTEM"
)

// Notification is an in-app notification row. RecipientUserID of zero means
// the row targets everyone with RecipientRole.
type Notification struct {
	gorm.Model
	RecipientUserID uint       `gorm:"column:recipient_user_id;index" json:"recipient_user_id,omitempty"`
	RecipientRole   string     `gorm:"column:recipient_role;size:20;default:'ALL'" json:"recipient_role"`
	Type            string     `gorm:"column:type;size:20;not null" json:"type"`
	Title           string     `gorm:"column:title;size:255;not null" json:"title"`
	Message         string     `gorm:"column:message;type:text;not null" json:"message"`
	Read            bool       `gorm:"column:read;default:false" json:"read"`
	ReadAt          *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
	Metadata        string     `gorm:"column:metadata;type:text" json:"metadata,omitempty"`
}

// Device holds an Expo push token registered by a client application.
type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_token_user" json:"user_id"`
	DeviceType string `gorm:"type:varchar(50)" json:"device_type,omitempty"`
	DeviceName string `gorm:"type:varchar(100)" json:"device_name,omitempty"`
}
