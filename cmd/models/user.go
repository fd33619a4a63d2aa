package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RolePatient = "PATIENT"
	RoleDoctor  = "DOCTOR"
	RoleAdmin   = "ADMIN"
)

// Doctor verification states. Only VERIFIED doctors with active accounts are
// visible to patients.
const (
	VerificationPending   = "PENDING"
	VerificationVerified  = "VERIFIED"
	VerificationRejected  = "REJECTED"
	VerificationSuspended = "SUSPENDED"
)

type User struct {
	gorm.Model
	Name         string     `gorm:"column:name;size:255;not null" json:"name"`
	Email        string     `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role         string     `gorm:"column:role;size:50;not null" json:"role"`
	Phone        string     `gorm:"column:phone;size:20" json:"phone"`
	IsActive     bool       `gorm:"column:is_active;default:true" json:"is_active"`
	SuspendedAt  *time.Time `gorm:"column:suspended_at" json:"suspended_at,omitempty"`

	EmailVerified         bool      `gorm:"column:email_verified;default:false" json:"email_verified"`
	EmailVerificationCode string    `gorm:"size:6" json:"-"`
	VerificationExpiry    time.Time `gorm:"" json:"-"`

	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`

	DoctorProfile *DoctorProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"doctor_profile,omitempty"`
}

type DoctorProfile struct {
	gorm.Model
	UserID          uint    `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Specialization  string  `gorm:"column:specialization;size:255;not null" json:"specialization"`
	ExperienceYears int     `gorm:"column:experience_years;not null" json:"experience_years"`
	Fee             float64 `gorm:"column:fee;not null" json:"fee"`
	Bio             string  `gorm:"column:bio;type:text" json:"bio"`
	LicenseNo       string  `gorm:"column:license_no;size:100;not null" json:"license_no"`
	DocUploadURL    string  `gorm:"column:doc_upload_url;size:500" json:"doc_upload_url"`

	VerificationStatus string `gorm:"column:verification_status;size:20;not null;default:'PENDING'" json:"verification_status"`
	RejectionReason    string `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`

	AvgRating    float64 `gorm:"column:avg_rating;default:0" json:"avg_rating"`
	TotalReviews int     `gorm:"column:total_reviews;default:0" json:"total_reviews"`

	ReverificationRequestedAt *time.Time `gorm:"column:reverification_requested_at" json:"reverification_requested_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (DoctorProfile) TableName() string {
	return "doctor_profiles"
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
