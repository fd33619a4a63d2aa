package booking

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	// A single connection keeps every session on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.DoctorProfile{},
		&models.AvailabilitySlot{},
		&models.Appointment{},
		&models.Payment{},
	)
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func seedPatient(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	patient := models.User{
		Name:         "Test Patient",
		Email:        fmt.Sprintf("patient-%d@example.com", time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         models.RolePatient,
		IsActive:     true,
	}
	if err := db.Create(&patient).Error; err != nil {
		t.Fatalf("seeding patient: %v", err)
	}
	return &patient
}

func seedDoctor(t *testing.T, db *gorm.DB, status string, fee float64) *models.User {
	t.Helper()
	doctor := models.User{
		Name:         "Test Doctor",
		Email:        fmt.Sprintf("doctor-%d@example.com", time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         models.RoleDoctor,
		IsActive:     status == models.VerificationVerified,
	}
	if err := db.Create(&doctor).Error; err != nil {
		t.Fatalf("seeding doctor: %v", err)
	}
	profile := models.DoctorProfile{
		UserID:             doctor.ID,
		Specialization:     "Cardiology",
		Fee:                fee,
		LicenseNo:          "LIC-1",
		VerificationStatus: status,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seeding doctor profile: %v", err)
	}
	return &doctor
}

func seedSlot(t *testing.T, db *gorm.DB, doctorID uint, date time.Time, start, end string) *models.AvailabilitySlot {
	t.Helper()
	slot := models.AvailabilitySlot{
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}
	if err := db.Create(&slot).Error; err != nil {
		t.Fatalf("seeding slot: %v", err)
	}
	return &slot
}

var slotDate = time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC)

func TestBookCreatesPendingAppointmentAndClaimsSlot(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 120)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if appt.Status != models.AppointmentPendingPayment {
		t.Errorf("status = %s, want %s", appt.Status, models.AppointmentPendingPayment)
	}
	if appt.StartTime != "10:00" || appt.EndTime != "10:30" {
		t.Errorf("appointment did not copy slot times: %s-%s", appt.StartTime, appt.EndTime)
	}

	var reloaded models.AvailabilitySlot
	if err := db.First(&reloaded, slot.ID).Error; err != nil {
		t.Fatalf("reloading slot: %v", err)
	}
	if !reloaded.IsBooked {
		t.Error("slot was not marked booked")
	}

	var payment models.Payment
	if err := db.Where("appointment_id = ?", appt.ID).First(&payment).Error; err != nil {
		t.Fatalf("loading payment: %v", err)
	}
	if payment.Status != models.PaymentInit {
		t.Errorf("payment status = %s, want %s", payment.Status, models.PaymentInit)
	}
	if payment.Amount != 120 {
		t.Errorf("payment amount = %v, want 120", payment.Amount)
	}
}

func TestBookSameSlotTwiceConflicts(t *testing.T) {
	db := newTestDB(t)
	first := seedPatient(t, db)
	second := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if _, err := Book(db, first.ID, doctor.ID, slot.ID); err != nil {
		t.Fatalf("first Book() error: %v", err)
	}

	_, err := Book(db, second.ID, doctor.ID, slot.ID)
	if !errors.Is(err, utils.ErrConflict) {
		t.Errorf("second Book() error = %v, want conflict", err)
	}

	var count int64
	db.Model(&models.Appointment{}).Where("slot_id = ?", slot.ID).Count(&count)
	if count != 1 {
		t.Errorf("appointments for slot = %d, want 1", count)
	}
}

func TestBookUnverifiedDoctorForbidden(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)

	for _, status := range []string{
		models.VerificationPending,
		models.VerificationRejected,
		models.VerificationSuspended,
	} {
		doctor := seedDoctor(t, db, status, 100)
		slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

		_, err := Book(db, patient.ID, doctor.ID, slot.ID)
		if !errors.Is(err, utils.ErrForbidden) {
			t.Errorf("Book() with %s doctor error = %v, want forbidden", status, err)
		}
	}
}

func TestBookSlotOfDifferentDoctorRejected(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	other := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, other.ID, slotDate, "10:00", "10:30")

	_, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if !errors.Is(err, utils.ErrValidation) {
		t.Errorf("Book() error = %v, want validation", err)
	}
}

func TestConfirmViaPayment(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	payment, err := ConfirmViaPayment(db, appt.ID, "TXN-abc")
	if err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}
	if payment.Status != models.PaymentSuccess {
		t.Errorf("payment status = %s, want %s", payment.Status, models.PaymentSuccess)
	}
	if payment.TxnRef == nil || *payment.TxnRef != "TXN-abc" {
		t.Errorf("txn ref not recorded: %v", payment.TxnRef)
	}

	var reloaded models.Appointment
	if err := db.First(&reloaded, appt.ID).Error; err != nil {
		t.Fatalf("reloading appointment: %v", err)
	}
	if reloaded.Status != models.AppointmentConfirmed {
		t.Errorf("appointment status = %s, want %s", reloaded.Status, models.AppointmentConfirmed)
	}
}

func TestConfirmViaPaymentGeneratesReference(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	payment, err := ConfirmViaPayment(db, appt.ID, "")
	if err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}
	if payment.TxnRef == nil || *payment.TxnRef == "" {
		t.Error("expected a generated transaction reference")
	}
}

func TestConfirmViaPaymentDuplicateReference(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	first := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")
	second := seedSlot(t, db, doctor.ID, slotDate, "11:00", "11:30")

	apptA, err := Book(db, patient.ID, doctor.ID, first.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	apptB, err := Book(db, patient.ID, doctor.ID, second.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if _, err := ConfirmViaPayment(db, apptA.ID, "TXN-same"); err != nil {
		t.Fatalf("first ConfirmViaPayment() error: %v", err)
	}
	_, err = ConfirmViaPayment(db, apptB.ID, "TXN-same")
	if !errors.Is(err, utils.ErrConflict) {
		t.Errorf("replayed reference error = %v, want conflict", err)
	}
}

func TestConfirmViaPaymentWrongState(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := Cancel(db, appt.ID, patient.ID, models.RolePatient, "", time.Now()); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	_, err = ConfirmViaPayment(db, appt.ID, "TXN-late")
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("ConfirmViaPayment() on cancelled error = %v, want invalid state", err)
	}
}

func TestCancelBeforeCutoffRefundsFully(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, ""); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}

	start, err := appt.StartAt()
	if err != nil {
		t.Fatalf("StartAt() error: %v", err)
	}

	result, err := Cancel(db, appt.ID, patient.ID, models.RolePatient, "plans changed", start.Add(-25*time.Hour))
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if result.RefundAmount != 150 {
		t.Errorf("refund = %v, want 150", result.RefundAmount)
	}

	var payment models.Payment
	if err := db.Where("appointment_id = ?", appt.ID).First(&payment).Error; err != nil {
		t.Fatalf("loading payment: %v", err)
	}
	if payment.Status != models.PaymentRefunded {
		t.Errorf("payment status = %s, want %s", payment.Status, models.PaymentRefunded)
	}
	if payment.RefundAmount != 150 {
		t.Errorf("payment refund amount = %v, want 150", payment.RefundAmount)
	}

	var reloadedSlot models.AvailabilitySlot
	if err := db.First(&reloadedSlot, slot.ID).Error; err != nil {
		t.Fatalf("reloading slot: %v", err)
	}
	if reloadedSlot.IsBooked {
		t.Error("slot was not released on cancel")
	}
}

func TestCancelInsideCutoffRefundsNothing(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, ""); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}

	start, err := appt.StartAt()
	if err != nil {
		t.Fatalf("StartAt() error: %v", err)
	}

	result, err := Cancel(db, appt.ID, patient.ID, models.RolePatient, "", start.Add(-23*time.Hour))
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if result.RefundAmount != 0 {
		t.Errorf("refund = %v, want 0", result.RefundAmount)
	}

	// The payment stays SUCCESS when nothing is refunded.
	var payment models.Payment
	if err := db.Where("appointment_id = ?", appt.ID).First(&payment).Error; err != nil {
		t.Fatalf("loading payment: %v", err)
	}
	if payment.Status != models.PaymentSuccess {
		t.Errorf("payment status = %s, want %s", payment.Status, models.PaymentSuccess)
	}
}

func TestCancelUnpaidAppointmentNoRefund(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	result, err := Cancel(db, appt.ID, patient.ID, models.RolePatient, "", time.Now())
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if result.RefundAmount != 0 {
		t.Errorf("refund = %v, want 0 for unpaid appointment", result.RefundAmount)
	}
}

func TestCancelCompletedAppointmentRejected(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, ""); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}
	if _, err := Complete(db, appt.ID, doctor.ID, models.RoleDoctor); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	_, err = Cancel(db, appt.ID, patient.ID, models.RolePatient, "", time.Now())
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("Cancel() on completed error = %v, want invalid state", err)
	}
}

func TestCancelByStrangerForbidden(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	stranger := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	_, err = Cancel(db, appt.ID, stranger.ID, models.RolePatient, "", time.Now())
	if !errors.Is(err, utils.ErrForbidden) {
		t.Errorf("Cancel() by stranger error = %v, want forbidden", err)
	}
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	_, err = Complete(db, appt.ID, doctor.ID, models.RoleDoctor)
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("Complete() on pending error = %v, want invalid state", err)
	}
}

func TestCompleteByPatientForbidden(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 150)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, patient.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, ""); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}

	_, err = Complete(db, appt.ID, patient.ID, models.RolePatient)
	if !errors.Is(err, utils.ErrForbidden) {
		t.Errorf("Complete() by patient error = %v, want forbidden", err)
	}
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	db := newTestDB(t)
	first := seedPatient(t, db)
	second := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	appt, err := Book(db, first.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, ""); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}

	start, err := appt.StartAt()
	if err != nil {
		t.Fatalf("StartAt() error: %v", err)
	}
	result, err := Cancel(db, appt.ID, first.ID, models.RolePatient, "", start.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if result.RefundAmount != 100 {
		t.Errorf("refund = %v, want 100", result.RefundAmount)
	}

	rebooked, err := Book(db, second.ID, doctor.ID, slot.ID)
	if err != nil {
		t.Fatalf("rebooking released slot: %v", err)
	}
	if rebooked.Status != models.AppointmentPendingPayment {
		t.Errorf("rebooked status = %s, want %s", rebooked.Status, models.AppointmentPendingPayment)
	}
}

func TestReschedule(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	oldSlot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")
	newSlot := seedSlot(t, db, doctor.ID, slotDate, "14:00", "14:30")

	appt, err := Book(db, patient.ID, doctor.ID, oldSlot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, "TXN-r1"); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}

	replacement, err := Reschedule(db, appt.ID, patient.ID, models.RolePatient, newSlot.ID)
	if err != nil {
		t.Fatalf("Reschedule() error: %v", err)
	}
	if replacement.Status != models.AppointmentConfirmed {
		t.Errorf("replacement status = %s, want %s", replacement.Status, models.AppointmentConfirmed)
	}
	if replacement.SlotID != newSlot.ID {
		t.Errorf("replacement slot = %d, want %d", replacement.SlotID, newSlot.ID)
	}

	var old models.Appointment
	if err := db.First(&old, appt.ID).Error; err != nil {
		t.Fatalf("reloading old appointment: %v", err)
	}
	if old.Status != models.AppointmentRescheduled {
		t.Errorf("old status = %s, want %s", old.Status, models.AppointmentRescheduled)
	}

	var oldReloaded, newReloaded models.AvailabilitySlot
	db.First(&oldReloaded, oldSlot.ID)
	db.First(&newReloaded, newSlot.ID)
	if oldReloaded.IsBooked {
		t.Error("old slot was not released")
	}
	if !newReloaded.IsBooked {
		t.Error("new slot was not claimed")
	}

	// The payment follows the replacement appointment.
	var payment models.Payment
	if err := db.Where("appointment_id = ?", replacement.ID).First(&payment).Error; err != nil {
		t.Fatalf("payment did not move to replacement: %v", err)
	}
	if payment.Status != models.PaymentSuccess {
		t.Errorf("payment status = %s, want %s", payment.Status, models.PaymentSuccess)
	}
}

func TestRescheduleToBookedSlotConflicts(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	other := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	oldSlot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")
	takenSlot := seedSlot(t, db, doctor.ID, slotDate, "14:00", "14:30")

	if _, err := Book(db, other.ID, doctor.ID, takenSlot.ID); err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	appt, err := Book(db, patient.ID, doctor.ID, oldSlot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if _, err := ConfirmViaPayment(db, appt.ID, ""); err != nil {
		t.Fatalf("ConfirmViaPayment() error: %v", err)
	}

	_, err = Reschedule(db, appt.ID, patient.ID, models.RolePatient, takenSlot.ID)
	if !errors.Is(err, utils.ErrConflict) {
		t.Errorf("Reschedule() to taken slot error = %v, want conflict", err)
	}

	// Original appointment is untouched after the failed reschedule.
	var reloaded models.Appointment
	db.First(&reloaded, appt.ID)
	if reloaded.Status != models.AppointmentConfirmed {
		t.Errorf("original status = %s, want %s", reloaded.Status, models.AppointmentConfirmed)
	}
	var oldReloaded models.AvailabilitySlot
	db.First(&oldReloaded, oldSlot.ID)
	if !oldReloaded.IsBooked {
		t.Error("original slot lost its claim after failed reschedule")
	}
}

func TestReschedulePendingAppointmentRejected(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	oldSlot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")
	newSlot := seedSlot(t, db, doctor.ID, slotDate, "14:00", "14:30")

	appt, err := Book(db, patient.ID, doctor.ID, oldSlot.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	_, err = Reschedule(db, appt.ID, patient.ID, models.RolePatient, newSlot.ID)
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("Reschedule() on pending error = %v, want invalid state", err)
	}
}
