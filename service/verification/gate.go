package verification

import (
	"errors"
	"fmt"
	"time"

	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"gorm.io/gorm"
)

// loadDoctor fetches the doctor user and profile or reports not-found.
func loadDoctor(db *gorm.DB, doctorUserID uint) (*models.User, *models.DoctorProfile, error) {
	var user models.User
	if err := db.First(&user, doctorUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: doctor not found", utils.ErrNotFound)
		}
		return nil, nil, err
	}
	if user.Role != models.RoleDoctor {
		return nil, nil, fmt.Errorf("%w: doctor not found", utils.ErrNotFound)
	}

	var profile models.DoctorProfile
	if err := db.Where("user_id = ?", doctorUserID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: doctor profile not found", utils.ErrNotFound)
		}
		return nil, nil, err
	}
	return &user, &profile, nil
}

// Bookable reports whether patients may book this doctor: verified, active
// account, not soft-deleted. The gorm soft delete already hides deleted rows.
func Bookable(db *gorm.DB, doctorUserID uint) error {
	user, profile, err := loadDoctor(db, doctorUserID)
	if err != nil {
		return err
	}
	if profile.VerificationStatus != models.VerificationVerified || !user.IsActive {
		return fmt.Errorf("%w: doctor is not accepting bookings", utils.ErrForbidden)
	}
	return nil
}

// Restricted reports whether a suspended doctor is blocked from
// doctor-initiated actions (slot management, prescriptions).
func Restricted(db *gorm.DB, userID uint) error {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user not found", utils.ErrNotFound)
		}
		return err
	}
	if user.Role == models.RoleDoctor && user.SuspendedAt != nil {
		return fmt.Errorf("%w: account is suspended", utils.ErrForbidden)
	}
	return nil
}

// Decide applies an admin verification decision to a PENDING doctor.
// Approving reactivates the account; rejecting records the reason and leaves
// the account inactive.
func Decide(db *gorm.DB, doctorUserID uint, approve bool, reason string) (*models.DoctorProfile, error) {
	user, profile, err := loadDoctor(db, doctorUserID)
	if err != nil {
		return nil, err
	}
	if profile.VerificationStatus != models.VerificationPending {
		return nil, fmt.Errorf("%w: doctor is not awaiting verification", utils.ErrInvalidState)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if approve {
			profile.VerificationStatus = models.VerificationVerified
			profile.RejectionReason = ""
			if err := tx.Save(profile).Error; err != nil {
				return err
			}
			user.IsActive = true
			user.SuspendedAt = nil
			return tx.Save(user).Error
		}

		profile.VerificationStatus = models.VerificationRejected
		profile.RejectionReason = reason
		if err := tx.Save(profile).Error; err != nil {
			return err
		}
		user.IsActive = false
		return tx.Save(user).Error
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Suspend deactivates a VERIFIED doctor. Existing confirmed appointments are
// left untouched; only visibility and new bookings are blocked.
func Suspend(db *gorm.DB, doctorUserID uint, reason string) (*models.DoctorProfile, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required for suspension", utils.ErrValidation)
	}

	user, profile, err := loadDoctor(db, doctorUserID)
	if err != nil {
		return nil, err
	}
	if profile.VerificationStatus != models.VerificationVerified {
		return nil, fmt.Errorf("%w: only verified doctors can be suspended", utils.ErrInvalidState)
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		profile.VerificationStatus = models.VerificationSuspended
		profile.ReverificationRequestedAt = nil
		if err := tx.Save(profile).Error; err != nil {
			return err
		}
		user.IsActive = false
		user.SuspendedAt = &now
		return tx.Save(user).Error
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Unsuspend reactivates a doctor's account. The doctor must have requested
// reverification first; their profile stays PENDING until an admin decides.
func Unsuspend(db *gorm.DB, doctorUserID uint) (*models.User, error) {
	user, profile, err := loadDoctor(db, doctorUserID)
	if err != nil {
		return nil, err
	}
	if user.SuspendedAt == nil {
		return nil, fmt.Errorf("%w: doctor is not suspended", utils.ErrInvalidState)
	}
	if profile.ReverificationRequestedAt == nil {
		return nil, fmt.Errorf("%w: doctor must request reverification first", utils.ErrForbidden)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		user.IsActive = true
		user.SuspendedAt = nil
		if err := tx.Save(user).Error; err != nil {
			return err
		}
		profile.ReverificationRequestedAt = nil
		return tx.Save(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RequestReverification moves a SUSPENDED or REJECTED doctor back to PENDING.
// The account stays inactive until an admin re-verifies.
func RequestReverification(db *gorm.DB, doctorUserID uint) (*models.DoctorProfile, error) {
	user, profile, err := loadDoctor(db, doctorUserID)
	if err != nil {
		return nil, err
	}
	if profile.VerificationStatus != models.VerificationSuspended &&
		profile.VerificationStatus != models.VerificationRejected {
		return nil, fmt.Errorf("%w: only suspended or rejected doctors can request reverification", utils.ErrInvalidState)
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		profile.VerificationStatus = models.VerificationPending
		profile.ReverificationRequestedAt = &now
		if err := tx.Save(profile).Error; err != nil {
			return err
		}
		user.IsActive = false
		return tx.Save(user).Error
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}
