package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AvailabilitySlot is a doctor-defined bookable time window on a specific
// date. StartTime/EndTime are local time-of-day strings ("09:30").
type AvailabilitySlot struct {
	gorm.Model
	DoctorID  uint      `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	Date      time.Time `gorm:"column:date;not null" json:"date"`
	StartTime string    `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime   string    `gorm:"column:end_time;size:5;not null" json:"end_time"`
	IsBooked  bool      `gorm:"column:is_booked;not null;default:false" json:"is_booked"`

	Doctor *User `gorm:"foreignKey:DoctorID" json:"-"`
}

func (AvailabilitySlot) TableName() string {
	return "availability_slots"
}

// StartAt combines the slot date and start time into a wall-clock instant,
// interpreted in the slot date's location.
func (s AvailabilitySlot) StartAt() (time.Time, error) {
	t, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q: %w", s.StartTime, err)
	}
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(),
		t.Hour(), t.Minute(), 0, 0, s.Date.Location()), nil
}
