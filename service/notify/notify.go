package notify

import (
	"encoding/json"
	"fmt"
	"log"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/medibridge/medibridge-server/cmd/models"
	"gorm.io/gorm"
)

// Dispatcher writes in-app notifications and fans out best-effort push
// messages. Every method is fire-and-forget: failures are logged and never
// propagated, so a failed notification cannot roll back the state change
// that triggered it.
type Dispatcher struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

// Send stores a notification row and pushes it to the recipient's registered
// devices.
func (d *Dispatcher) Send(recipientUserID uint, recipientRole, notifType, title, message string, metadata map[string]interface{}) {
	meta := ""
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			meta = string(raw)
		}
	}

	notification := models.Notification{
		RecipientUserID: recipientUserID,
		RecipientRole:   recipientRole,
		Type:            notifType,
		Title:           title,
		Message:         message,
		Metadata:        meta,
	}
	if err := d.db.Create(&notification).Error; err != nil {
		log.Printf("Error creating notification: %v", err)
		return
	}

	if recipientUserID != 0 {
		d.push(recipientUserID, title, message)
	}
}

func (d *Dispatcher) push(userID uint, title, body string) {
	var devices []models.Device
	if err := d.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		log.Printf("Error loading devices for user %d: %v", userID, err)
		return
	}

	for _, device := range devices {
		token, err := expo.NewExponentPushToken(device.Token)
		if err != nil {
			log.Printf("Skipping invalid push token for device %d", device.ID)
			continue
		}

		response, err := d.expoClient.Publish(&expo.PushMessage{
			To:    []expo.ExponentPushToken{token},
			Title: title,
			Body:  body,
			Sound: "default",
		})
		if err != nil {
			log.Printf("Error sending push to user %d: %v", userID, err)
			continue
		}
		if response.ValidateResponse() != nil {
			log.Printf("Push to user %d rejected: %s", userID, response.Message)
		}
	}
}

// AppointmentEvent notifies the relevant parties about a booking transition.
func (d *Dispatcher) AppointmentEvent(appt *models.Appointment, event string) {
	meta := map[string]interface{}{"appointment_id": appt.ID}

	switch event {
	case models.AppointmentPendingPayment:
		d.Send(appt.DoctorID, models.RoleDoctor, models.NotificationAppointment,
			"New Appointment Request", "You have a new appointment request", meta)
	case models.AppointmentConfirmed:
		d.Send(appt.PatientID, models.RolePatient, models.NotificationAppointment,
			"Appointment Confirmed", "Your appointment has been confirmed", meta)
		d.Send(appt.DoctorID, models.RoleDoctor, models.NotificationAppointment,
			"Appointment Confirmed", "An appointment with you has been confirmed", meta)
	case models.AppointmentCancelled:
		d.Send(appt.PatientID, models.RolePatient, models.NotificationAppointment,
			"Appointment Cancelled", "Your appointment has been cancelled", meta)
		d.Send(appt.DoctorID, models.RoleDoctor, models.NotificationAppointment,
			"Appointment Cancelled", "An appointment with you has been cancelled", meta)
	case models.AppointmentRescheduled:
		d.Send(appt.PatientID, models.RolePatient, models.NotificationAppointment,
			"Appointment Rescheduled", "Your appointment has been moved to a new slot", meta)
		d.Send(appt.DoctorID, models.RoleDoctor, models.NotificationAppointment,
			"Appointment Rescheduled", "An appointment with you has been moved to a new slot", meta)
	}
}

// RefundProcessed notifies the patient that their refund went through.
func (d *Dispatcher) RefundProcessed(appt *models.Appointment, amount float64) {
	d.Send(appt.PatientID, models.RolePatient, models.NotificationPayment,
		"Refund Processed",
		fmt.Sprintf("A refund of %.2f has been processed for your cancelled appointment", amount),
		map[string]interface{}{"appointment_id": appt.ID, "amount": amount})
}

// VerificationEvent notifies a doctor about a verification decision.
func (d *Dispatcher) VerificationEvent(doctorUserID uint, status, reason string) {
	meta := map[string]interface{}{"action": status}

	switch status {
	case models.VerificationVerified:
		d.Send(doctorUserID, models.RoleDoctor, models.NotificationVerification,
			"Profile Verified", "Your doctor profile has been verified", meta)
	case models.VerificationRejected:
		msg := "Your doctor profile has been rejected"
		if reason != "" {
			msg += ": " + reason
		}
		d.Send(doctorUserID, models.RoleDoctor, models.NotificationVerification,
			"Profile Rejected", msg, meta)
	case models.VerificationSuspended:
		d.Send(doctorUserID, models.RoleDoctor, models.NotificationVerification,
			"Account Suspended", "Your account has been suspended. Please contact support.", meta)
	default:
		d.Send(doctorUserID, models.RoleDoctor, models.NotificationVerification,
			"Account Unsuspended", "Your account has been unsuspended. You can use the platform again.", meta)
	}
}
