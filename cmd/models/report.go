package models

import (
	"gorm.io/gorm"
)

const (
	ReportReasonProfessionalism   = "PROFESSIONALISM"
	ReportReasonCommunication     = "COMMUNICATION"
	ReportReasonAppointmentIssues = "APPOINTMENT_ISSUES"
	ReportReasonOther             = "OTHER"
)

const (
	ReportOpen        = "OPEN"
	ReportUnderReview = "UNDER_REVIEW"
	ReportActioned    = "ACTIONED"
	ReportDismissed   = "DISMISSED"
)

// Report records patient feedback against a doctor, at most one per
// appointment.
type Report struct {
	gorm.Model
	PatientID     uint   `gorm:"column:patient_id;not null;index" json:"patient_id"`
	DoctorID      uint   `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	AppointmentID uint   `gorm:"column:appointment_id;not null;uniqueIndex" json:"appointment_id"`
	Reason        string `gorm:"column:reason;size:50;not null" json:"reason"`
	Description   string `gorm:"column:description;type:text;not null" json:"description"`
	Status        string `gorm:"column:status;size:20;not null;default:'OPEN'" json:"status"`
	InternalNote  string `gorm:"column:internal_note;type:text" json:"internal_note,omitempty"`

	Patient *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *User `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}
