package verification

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

	if err := db.AutoMigrate(&models.User{}, &models.DoctorProfile{}); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func seedDoctor(t *testing.T, db *gorm.DB, status string, active bool) *models.User {
	t.Helper()
	doctor := models.User{
		Name:         "Test Doctor",
		Email:        fmt.Sprintf("doctor-%d@example.com", time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         models.RoleDoctor,
		IsActive:     active,
	}
	if err := db.Create(&doctor).Error; err != nil {
		t.Fatalf("seeding doctor: %v", err)
	}
	profile := models.DoctorProfile{
		UserID:             doctor.ID,
		Specialization:     "Dermatology",
		Fee:                90,
		LicenseNo:          "LIC-2",
		VerificationStatus: status,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seeding doctor profile: %v", err)
	}
	return &doctor
}

func profileOf(t *testing.T, db *gorm.DB, doctorID uint) *models.DoctorProfile {
	t.Helper()
	var profile models.DoctorProfile
	if err := db.Where("user_id = ?", doctorID).First(&profile).Error; err != nil {
		t.Fatalf("loading profile: %v", err)
	}
	return &profile
}

func TestBookable(t *testing.T) {
	db := newTestDB(t)

	tests := []struct {
		name    string
		status  string
		active  bool
		wantErr bool
	}{
		{"verified and active", models.VerificationVerified, true, false},
		{"verified but inactive", models.VerificationVerified, false, true},
		{"pending", models.VerificationPending, false, true},
		{"rejected", models.VerificationRejected, false, true},
		{"suspended", models.VerificationSuspended, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doctor := seedDoctor(t, db, tt.status, tt.active)
			err := Bookable(db, doctor.ID)
			if tt.wantErr {
				if !errors.Is(err, utils.ErrForbidden) {
					t.Errorf("Bookable() error = %v, want forbidden", err)
				}
			} else if err != nil {
				t.Errorf("Bookable() error = %v, want nil", err)
			}
		})
	}

	if err := Bookable(db, 9999); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("Bookable() on missing doctor error = %v, want not found", err)
	}
}

func TestDecideApprove(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationPending, false)

	profile, err := Decide(db, doctor.ID, true, "")
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if profile.VerificationStatus != models.VerificationVerified {
		t.Errorf("status = %s, want %s", profile.VerificationStatus, models.VerificationVerified)
	}

	var user models.User
	db.First(&user, doctor.ID)
	if !user.IsActive {
		t.Error("approval did not activate the account")
	}

	// A second decision on the same doctor is rejected.
	if _, err := Decide(db, doctor.ID, true, ""); !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("double Decide() error = %v, want invalid state", err)
	}
}

func TestDecideReject(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationPending, false)

	profile, err := Decide(db, doctor.ID, false, "license number does not match registry")
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if profile.VerificationStatus != models.VerificationRejected {
		t.Errorf("status = %s, want %s", profile.VerificationStatus, models.VerificationRejected)
	}
	if profile.RejectionReason == "" {
		t.Error("rejection reason was not recorded")
	}

	var user models.User
	db.First(&user, doctor.ID)
	if user.IsActive {
		t.Error("rejected doctor should stay inactive")
	}
}

func TestDecideOnVerifiedDoctorRejected(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	if _, err := Decide(db, doctor.ID, true, ""); !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("Decide() on verified error = %v, want invalid state", err)
	}
}

func TestSuspend(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	profile, err := Suspend(db, doctor.ID, "multiple patient reports actioned")
	if err != nil {
		t.Fatalf("Suspend() error: %v", err)
	}
	if profile.VerificationStatus != models.VerificationSuspended {
		t.Errorf("status = %s, want %s", profile.VerificationStatus, models.VerificationSuspended)
	}

	var user models.User
	db.First(&user, doctor.ID)
	if user.IsActive {
		t.Error("suspension did not deactivate the account")
	}
	if user.SuspendedAt == nil {
		t.Error("suspension timestamp was not set")
	}
}

func TestSuspendRequiresReason(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	if _, err := Suspend(db, doctor.ID, ""); !errors.Is(err, utils.ErrValidation) {
		t.Errorf("Suspend() without reason error = %v, want validation", err)
	}
}

func TestSuspendOnlyVerified(t *testing.T) {
	db := newTestDB(t)

	for _, status := range []string{
		models.VerificationPending,
		models.VerificationRejected,
		models.VerificationSuspended,
	} {
		doctor := seedDoctor(t, db, status, false)
		if _, err := Suspend(db, doctor.ID, "reason"); !errors.Is(err, utils.ErrInvalidState) {
			t.Errorf("Suspend() on %s error = %v, want invalid state", status, err)
		}
	}
}

func TestUnsuspendRequiresReverificationRequest(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	if _, err := Suspend(db, doctor.ID, "reports"); err != nil {
		t.Fatalf("Suspend() error: %v", err)
	}

	// Without a reverification request the unsuspend is refused.
	if _, err := Unsuspend(db, doctor.ID); !errors.Is(err, utils.ErrForbidden) {
		t.Errorf("Unsuspend() without request error = %v, want forbidden", err)
	}

	if _, err := RequestReverification(db, doctor.ID); err != nil {
		t.Fatalf("RequestReverification() error: %v", err)
	}

	user, err := Unsuspend(db, doctor.ID)
	if err != nil {
		t.Fatalf("Unsuspend() error: %v", err)
	}
	if !user.IsActive || user.SuspendedAt != nil {
		t.Error("unsuspend did not reactivate the account")
	}

	// The profile stays pending until an admin decides again.
	profile := profileOf(t, db, doctor.ID)
	if profile.VerificationStatus != models.VerificationPending {
		t.Errorf("status after unsuspend = %s, want %s", profile.VerificationStatus, models.VerificationPending)
	}
	if profile.ReverificationRequestedAt != nil {
		t.Error("reverification flag should be cleared after unsuspend")
	}
}

func TestUnsuspendNotSuspended(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	if _, err := Unsuspend(db, doctor.ID); !errors.Is(err, utils.ErrInvalidState) {
		t.Errorf("Unsuspend() on active doctor error = %v, want invalid state", err)
	}
}

func TestRequestReverification(t *testing.T) {
	db := newTestDB(t)

	t.Run("from rejected", func(t *testing.T) {
		doctor := seedDoctor(t, db, models.VerificationRejected, false)
		profile, err := RequestReverification(db, doctor.ID)
		if err != nil {
			t.Fatalf("RequestReverification() error: %v", err)
		}
		if profile.VerificationStatus != models.VerificationPending {
			t.Errorf("status = %s, want %s", profile.VerificationStatus, models.VerificationPending)
		}
		if profile.ReverificationRequestedAt == nil {
			t.Error("request timestamp was not set")
		}

		var user models.User
		db.First(&user, doctor.ID)
		if user.IsActive {
			t.Error("account must stay inactive until re-verified")
		}
	})

	t.Run("from verified is rejected", func(t *testing.T) {
		doctor := seedDoctor(t, db, models.VerificationVerified, true)
		if _, err := RequestReverification(db, doctor.ID); !errors.Is(err, utils.ErrInvalidState) {
			t.Errorf("RequestReverification() on verified error = %v, want invalid state", err)
		}
	})

	t.Run("from pending is rejected", func(t *testing.T) {
		doctor := seedDoctor(t, db, models.VerificationPending, false)
		if _, err := RequestReverification(db, doctor.ID); !errors.Is(err, utils.ErrInvalidState) {
			t.Errorf("RequestReverification() on pending error = %v, want invalid state", err)
		}
	})
}

func TestSuspendReverifyApproveCycle(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	if _, err := Suspend(db, doctor.ID, "reports"); err != nil {
		t.Fatalf("Suspend() error: %v", err)
	}
	if _, err := RequestReverification(db, doctor.ID); err != nil {
		t.Fatalf("RequestReverification() error: %v", err)
	}
	if _, err := Decide(db, doctor.ID, true, ""); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	if err := Bookable(db, doctor.ID); err != nil {
		t.Errorf("doctor should be bookable after the full cycle: %v", err)
	}
}

func TestRestricted(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, true)

	if err := Restricted(db, doctor.ID); err != nil {
		t.Errorf("Restricted() on active doctor error = %v, want nil", err)
	}

	if _, err := Suspend(db, doctor.ID, "reports"); err != nil {
		t.Fatalf("Suspend() error: %v", err)
	}
	if err := Restricted(db, doctor.ID); !errors.Is(err, utils.ErrForbidden) {
		t.Errorf("Restricted() on suspended doctor error = %v, want forbidden", err)
	}
}
