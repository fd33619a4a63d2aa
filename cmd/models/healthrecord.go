package models

import (
	"time"

	"gorm.io/gorm"
)

// HealthRecord is a patient-maintained entry of dated health metrics.
type HealthRecord struct {
	gorm.Model
	PatientID uint      `gorm:"column:patient_id;not null;index" json:"patient_id"`
	Date      time.Time `gorm:"column:date;not null" json:"date"`

	Systolic   *int     `gorm:"column:systolic" json:"systolic,omitempty"`
	Diastolic  *int     `gorm:"column:diastolic" json:"diastolic,omitempty"`
	BloodSugar *float64 `gorm:"column:blood_sugar" json:"blood_sugar,omitempty"`
	Weight     *float64 `gorm:"column:weight" json:"weight,omitempty"`
	Height     *float64 `gorm:"column:height" json:"height,omitempty"`
	Notes      string   `gorm:"column:notes;type:text" json:"notes,omitempty"`

	Patient *User `gorm:"foreignKey:PatientID" json:"-"`
}
