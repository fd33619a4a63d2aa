package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"github.com/medibridge/medibridge-server/service/verification"
	"gorm.io/gorm"
)

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	Appointment  *models.Appointment
	RefundAmount float64
}

func loadAppointment(db *gorm.DB, appointmentID uint) (*models.Appointment, error) {
	var appt models.Appointment
	if err := db.First(&appt, appointmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: appointment not found", utils.ErrNotFound)
		}
		return nil, err
	}
	return &appt, nil
}

// actorOwns reports whether the actor may operate on the appointment: its
// patient, its doctor, or any admin.
func actorOwns(appt *models.Appointment, actorID uint, actorRole string) bool {
	if actorRole == models.RoleAdmin {
		return true
	}
	return appt.PatientID == actorID || appt.DoctorID == actorID
}

// Book claims the slot for the patient and creates an appointment awaiting
// payment. The doctor must be verified and active, the slot must belong to
// the doctor and be unbooked. Losing the claim race returns a conflict.
func Book(db *gorm.DB, patientID, doctorID, slotID uint) (*models.Appointment, error) {
	var appt models.Appointment

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := verification.Bookable(tx, doctorID); err != nil {
			return err
		}

		var slot models.AvailabilitySlot
		if err := tx.First(&slot, slotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: slot not found", utils.ErrNotFound)
			}
			return err
		}
		if slot.DoctorID != doctorID {
			return fmt.Errorf("%w: slot does not belong to this doctor", utils.ErrValidation)
		}

		if err := ClaimSlot(tx, slotID); err != nil {
			return err
		}

		var profile models.DoctorProfile
		if err := tx.Where("user_id = ?", doctorID).First(&profile).Error; err != nil {
			return err
		}

		appt = models.Appointment{
			PatientID:       patientID,
			DoctorID:        doctorID,
			SlotID:          slotID,
			AppointmentDate: slot.Date,
			StartTime:       slot.StartTime,
			EndTime:         slot.EndTime,
			Status:          models.AppointmentPendingPayment,
		}
		if err := tx.Create(&appt).Error; err != nil {
			return err
		}

		payment := models.Payment{
			AppointmentID: appt.ID,
			Amount:        profile.Fee,
			Status:        models.PaymentInit,
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// ConfirmViaPayment records a successful payment and confirms the
// appointment. An empty txnRef gets a generated reference; a replayed
// reference trips the unique index and surfaces as a conflict.
func ConfirmViaPayment(db *gorm.DB, appointmentID uint, txnRef string) (*models.Payment, error) {
	var payment models.Payment

	err := db.Transaction(func(tx *gorm.DB) error {
		appt, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status != models.AppointmentPendingPayment {
			return fmt.Errorf("%w: appointment is not awaiting payment", utils.ErrInvalidState)
		}

		if err := tx.Where("appointment_id = ?", appointmentID).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: payment not found", utils.ErrNotFound)
			}
			return err
		}

		if txnRef == "" {
			txnRef = fmt.Sprintf("TXN-%s", uuid.New().String())
		}
		payment.TxnRef = &txnRef
		payment.Status = models.PaymentSuccess
		if err := tx.Save(&payment).Error; err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: transaction reference already used", utils.ErrConflict)
			}
			return err
		}

		appt.Status = models.AppointmentConfirmed
		return tx.Save(appt).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Cancel moves a PENDING_PAYMENT or CONFIRMED appointment to CANCELLED,
// releases exactly the slot it claimed, and refunds per the 24-hour policy.
// The status is re-checked inside the transaction so a concurrent transition
// cannot be lost.
func Cancel(db *gorm.DB, appointmentID, actorID uint, actorRole, reason string, now time.Time) (*CancelResult, error) {
	result := &CancelResult{}

	err := db.Transaction(func(tx *gorm.DB) error {
		appt, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		if !actorOwns(appt, actorID, actorRole) {
			return fmt.Errorf("%w: not authorized to cancel this appointment", utils.ErrForbidden)
		}
		if appt.Status != models.AppointmentPendingPayment && appt.Status != models.AppointmentConfirmed {
			return fmt.Errorf("%w: cannot cancel in current state", utils.ErrInvalidState)
		}

		appt.Status = models.AppointmentCancelled
		appt.CancelReason = reason
		if err := tx.Save(appt).Error; err != nil {
			return err
		}

		if err := ReleaseSlot(tx, appt.SlotID); err != nil {
			return err
		}

		var payment models.Payment
		err = tx.Where("appointment_id = ?", appointmentID).First(&payment).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && payment.Status == models.PaymentSuccess {
			start, err := appt.StartAt()
			if err != nil {
				return err
			}
			refund := ComputeRefund(start, now, payment.Amount)
			if refund > 0 {
				payment.Status = models.PaymentRefunded
				payment.RefundAmount = refund
				if err := tx.Save(&payment).Error; err != nil {
					return err
				}
			}
			result.RefundAmount = refund
		}

		result.Appointment = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Complete moves a CONFIRMED appointment to COMPLETED, unlocking
// prescriptions and reviews for it.
func Complete(db *gorm.DB, appointmentID, actorID uint, actorRole string) (*models.Appointment, error) {
	var result *models.Appointment

	err := db.Transaction(func(tx *gorm.DB) error {
		appt, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		if actorRole != models.RoleAdmin && appt.DoctorID != actorID {
			return fmt.Errorf("%w: only the doctor can complete this appointment", utils.ErrForbidden)
		}
		if appt.Status != models.AppointmentConfirmed {
			return fmt.Errorf("%w: only confirmed appointments can be completed", utils.ErrInvalidState)
		}

		appt.Status = models.AppointmentCompleted
		if err := tx.Save(appt).Error; err != nil {
			return err
		}
		result = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reschedule moves a CONFIRMED appointment to a new unbooked slot of the same
// doctor. The old appointment becomes terminal RESCHEDULED and its slot is
// released; a new CONFIRMED appointment takes over, carrying the payment.
func Reschedule(db *gorm.DB, appointmentID, actorID uint, actorRole string, newSlotID uint) (*models.Appointment, error) {
	var replacement models.Appointment

	err := db.Transaction(func(tx *gorm.DB) error {
		appt, err := loadAppointment(tx, appointmentID)
		if err != nil {
			return err
		}
		if !actorOwns(appt, actorID, actorRole) {
			return fmt.Errorf("%w: not authorized to reschedule this appointment", utils.ErrForbidden)
		}
		if appt.Status != models.AppointmentConfirmed {
			return fmt.Errorf("%w: only confirmed appointments can be rescheduled", utils.ErrInvalidState)
		}

		var newSlot models.AvailabilitySlot
		if err := tx.First(&newSlot, newSlotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: slot not found", utils.ErrNotFound)
			}
			return err
		}
		if newSlot.DoctorID != appt.DoctorID {
			return fmt.Errorf("%w: new slot belongs to a different doctor", utils.ErrValidation)
		}
		if newSlot.ID == appt.SlotID {
			return fmt.Errorf("%w: appointment already uses this slot", utils.ErrValidation)
		}

		if err := ClaimSlot(tx, newSlotID); err != nil {
			return err
		}
		if err := ReleaseSlot(tx, appt.SlotID); err != nil {
			return err
		}

		appt.Status = models.AppointmentRescheduled
		if err := tx.Save(appt).Error; err != nil {
			return err
		}

		replacement = models.Appointment{
			PatientID:       appt.PatientID,
			DoctorID:        appt.DoctorID,
			SlotID:          newSlotID,
			AppointmentDate: newSlot.Date,
			StartTime:       newSlot.StartTime,
			EndTime:         newSlot.EndTime,
			Status:          models.AppointmentConfirmed,
		}
		if err := tx.Create(&replacement).Error; err != nil {
			return err
		}

		// Refund accounting follows the live appointment.
		return tx.Model(&models.Payment{}).
			Where("appointment_id = ?", appt.ID).
			Update("appointment_id", replacement.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &replacement, nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "UNIQUE constraint")
}
