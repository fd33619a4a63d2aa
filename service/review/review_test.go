package review

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
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.DoctorProfile{},
		&models.Appointment{},
		&models.Review{},
	)
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role string) *models.User {
	t.Helper()
	user := models.User{
		Name:         "Test " + role,
		Email:        fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return &user
}

func seedCompletedAppointment(t *testing.T, db *gorm.DB, patientID, doctorID uint) *models.Appointment {
	t.Helper()
	appt := models.Appointment{
		PatientID:       patientID,
		DoctorID:        doctorID,
		SlotID:          1,
		AppointmentDate: time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC),
		StartTime:       "10:00",
		EndTime:         "10:30",
		Status:          models.AppointmentCompleted,
	}
	if err := db.Create(&appt).Error; err != nil {
		t.Fatalf("seeding appointment: %v", err)
	}
	return &appt
}

func TestCreateReviewUpdatesAggregate(t *testing.T) {
	db := newTestDB(t)
	doctor := seedUser(t, db, models.RoleDoctor)
	profile := models.DoctorProfile{
		UserID:             doctor.ID,
		Specialization:     "Cardiology",
		LicenseNo:          "LIC-3",
		VerificationStatus: models.VerificationVerified,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seeding profile: %v", err)
	}

	ratings := []float64{5, 3, 4}
	for _, rating := range ratings {
		patient := seedUser(t, db, models.RolePatient)
		appt := seedCompletedAppointment(t, db, patient.ID, doctor.ID)
		if _, err := Create(db, patient.ID, appt.ID, rating, "fine"); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	var reloaded models.DoctorProfile
	if err := db.Where("user_id = ?", doctor.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reloading profile: %v", err)
	}
	if reloaded.TotalReviews != 3 {
		t.Errorf("total reviews = %d, want 3", reloaded.TotalReviews)
	}
	if reloaded.AvgRating != 4 {
		t.Errorf("avg rating = %v, want 4", reloaded.AvgRating)
	}
}

func TestCreateReviewTwiceConflicts(t *testing.T) {
	db := newTestDB(t)
	doctor := seedUser(t, db, models.RoleDoctor)
	patient := seedUser(t, db, models.RolePatient)
	profile := models.DoctorProfile{UserID: doctor.ID, LicenseNo: "LIC-4", VerificationStatus: models.VerificationVerified}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seeding profile: %v", err)
	}
	appt := seedCompletedAppointment(t, db, patient.ID, doctor.ID)

	if _, err := Create(db, patient.ID, appt.ID, 5, "great"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := Create(db, patient.ID, appt.ID, 1, "changed my mind"); !errors.Is(err, utils.ErrConflict) {
		t.Errorf("second Create() error = %v, want conflict", err)
	}
}

func TestCreateReviewRequiresCompletedAppointment(t *testing.T) {
	db := newTestDB(t)
	doctor := seedUser(t, db, models.RoleDoctor)
	patient := seedUser(t, db, models.RolePatient)

	for _, status := range []string{
		models.AppointmentPendingPayment,
		models.AppointmentConfirmed,
		models.AppointmentCancelled,
		models.AppointmentRescheduled,
	} {
		appt := models.Appointment{
			PatientID:       patient.ID,
			DoctorID:        doctor.ID,
			SlotID:          1,
			AppointmentDate: time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC),
			StartTime:       "10:00",
			EndTime:         "10:30",
			Status:          status,
		}
		if err := db.Create(&appt).Error; err != nil {
			t.Fatalf("seeding appointment: %v", err)
		}
		if _, err := Create(db, patient.ID, appt.ID, 4, ""); !errors.Is(err, utils.ErrInvalidState) {
			t.Errorf("Create() on %s appointment error = %v, want invalid state", status, err)
		}
	}
}

func TestCreateReviewValidation(t *testing.T) {
	db := newTestDB(t)
	doctor := seedUser(t, db, models.RoleDoctor)
	patient := seedUser(t, db, models.RolePatient)
	appt := seedCompletedAppointment(t, db, patient.ID, doctor.ID)

	for _, rating := range []float64{0, 0.5, 5.5, -1} {
		if _, err := Create(db, patient.ID, appt.ID, rating, ""); !errors.Is(err, utils.ErrValidation) {
			t.Errorf("Create() with rating %v error = %v, want validation", rating, err)
		}
	}
}

func TestCreateReviewByOtherPatientForbidden(t *testing.T) {
	db := newTestDB(t)
	doctor := seedUser(t, db, models.RoleDoctor)
	patient := seedUser(t, db, models.RolePatient)
	stranger := seedUser(t, db, models.RolePatient)
	appt := seedCompletedAppointment(t, db, patient.ID, doctor.ID)

	if _, err := Create(db, stranger.ID, appt.ID, 4, ""); !errors.Is(err, utils.ErrForbidden) {
		t.Errorf("Create() by stranger error = %v, want forbidden", err)
	}
}
