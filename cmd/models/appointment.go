package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Appointment statuses. Transitions are monotonic:
// PENDING_PAYMENT -> CONFIRMED -> COMPLETED, with CANCELLED reachable from
// PENDING_PAYMENT and CONFIRMED, and RESCHEDULED terminal from CONFIRMED.
const (
	AppointmentPendingPayment = "PENDING_PAYMENT"
	AppointmentConfirmed      = "CONFIRMED"
	AppointmentCompleted      = "COMPLETED"
	AppointmentCancelled      = "CANCELLED"
	AppointmentRescheduled    = "RESCHEDULED"
)

const (
	PaymentInit     = "INIT"
	PaymentSuccess  = "SUCCESS"
	PaymentRefunded = "REFUNDED"
)

type Appointment struct {
	gorm.Model
	PatientID uint `gorm:"column:patient_id;not null;index" json:"patient_id"`
	DoctorID  uint `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	SlotID    uint `gorm:"column:slot_id;not null;index" json:"slot_id"`

	AppointmentDate time.Time `gorm:"column:appointment_date;not null" json:"appointment_date"`
	StartTime       string    `gorm:"column:start_time;size:5;not null" json:"start_time"`
	EndTime         string    `gorm:"column:end_time;size:5;not null" json:"end_time"`

	Status       string `gorm:"column:status;size:20;not null;default:'PENDING_PAYMENT'" json:"status"`
	CancelReason string `gorm:"column:cancel_reason;type:text" json:"cancel_reason,omitempty"`

	Patient *User             `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *User             `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
	Slot    *AvailabilitySlot `gorm:"foreignKey:SlotID" json:"slot,omitempty"`
}

// StartAt is the scheduled start instant, combining the copied slot date and
// start time.
func (a Appointment) StartAt() (time.Time, error) {
	t, err := time.Parse("15:04", a.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q: %w", a.StartTime, err)
	}
	return time.Date(a.AppointmentDate.Year(), a.AppointmentDate.Month(), a.AppointmentDate.Day(),
		t.Hour(), t.Minute(), 0, 0, a.AppointmentDate.Location()), nil
}

// Payment is one-to-one with an appointment for its active lifecycle. TxnRef
// is set when the (simulated) gateway reports success and is unique across
// all payments.
type Payment struct {
	gorm.Model
	AppointmentID uint    `gorm:"column:appointment_id;not null;index" json:"appointment_id"`
	Amount        float64 `gorm:"column:amount;not null" json:"amount"`
	TxnRef        *string `gorm:"column:txn_ref;size:100;uniqueIndex" json:"txn_ref,omitempty"`
	Status        string  `gorm:"column:status;size:20;not null;default:'INIT'" json:"status"`
	RefundAmount  float64 `gorm:"column:refund_amount;default:0" json:"refund_amount"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
}
