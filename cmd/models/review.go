package models

import (
	"gorm.io/gorm"
)

// Review is keyed uniquely by appointment so a patient can leave at most one
// review per consultation.
type Review struct {
	gorm.Model
	AppointmentID uint    `gorm:"column:appointment_id;not null;uniqueIndex" json:"appointment_id"`
	PatientID     uint    `gorm:"column:patient_id;not null;index" json:"patient_id"`
	DoctorID      uint    `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	Rating        float64 `gorm:"column:rating;not null" json:"rating"`
	Comment       string  `gorm:"column:comment;size:500" json:"comment"`

	Patient *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *User `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}
