package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Prescription is issued by the doctor of a COMPLETED appointment, at most
// one per appointment. Medicines holds free-form dosage lines.
type Prescription struct {
	gorm.Model
	AppointmentID uint `gorm:"column:appointment_id;not null;uniqueIndex" json:"appointment_id"`
	PatientID     uint `gorm:"column:patient_id;not null;index" json:"patient_id"`
	DoctorID      uint `gorm:"column:doctor_id;not null;index" json:"doctor_id"`

	Diagnosis string         `gorm:"column:diagnosis;type:text;not null" json:"diagnosis"`
	Medicines pq.StringArray `gorm:"type:text[];column:medicines" json:"medicines"`
	Advice    string         `gorm:"column:advice;type:text" json:"advice,omitempty"`

	FollowUpDate *time.Time `gorm:"column:follow_up_date" json:"follow_up_date,omitempty"`

	Patient *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *User `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}
