package doctor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"github.com/medibridge/medibridge-server/service/notify"
	"github.com/medibridge/medibridge-server/service/verification"
	"gorm.io/gorm"
)

type Handler struct {
	db       *gorm.DB
	notifier *notify.Dispatcher
}

func NewHandler(db *gorm.DB, notifier *notify.Dispatcher) *Handler {
	return &Handler{db: db, notifier: notifier}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/doctors/profile", utils.RequireRole(h.handleUpsertProfile, models.RoleDoctor)).Methods("PUT")
	router.HandleFunc("/doctors/profile", utils.RequireRole(h.handleGetMyProfile, models.RoleDoctor)).Methods("GET")
	router.HandleFunc("/doctors/profile/document", utils.RequireRole(h.handleUploadDocument, models.RoleDoctor)).Methods("POST")
	router.HandleFunc("/doctors/reverification", utils.RequireRole(h.handleRequestReverification, models.RoleDoctor)).Methods("POST")
	router.HandleFunc("/doctors", utils.AuthMiddleware(h.handleListDoctors)).Methods("GET")
	router.HandleFunc("/doctors/{doctorId}", utils.AuthMiddleware(h.handleGetDoctor)).Methods("GET")
}

// handleUpsertProfile creates or updates the doctor's own profile. Every edit
// drops the profile back to PENDING for re-verification.
func (h *Handler) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var profileRequest struct {
		Specialization  string  `json:"specialization"`
		ExperienceYears int     `json:"experience_years"`
		Fee             float64 `json:"fee"`
		Bio             string  `json:"bio"`
		LicenseNo       string  `json:"license_no"`
	}
	if err := json.NewDecoder(r.Body).Decode(&profileRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if profileRequest.Specialization == "" || profileRequest.LicenseNo == "" {
		http.Error(w, "specialization and license_no are required", http.StatusBadRequest)
		return
	}
	if profileRequest.Fee < 0 || profileRequest.ExperienceYears < 0 {
		http.Error(w, "fee and experience_years must not be negative", http.StatusBadRequest)
		return
	}

	var profile models.DoctorProfile
	err = h.db.Where("user_id = ?", doctorID).First(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = models.DoctorProfile{
			UserID:             doctorID,
			Specialization:     profileRequest.Specialization,
			ExperienceYears:    profileRequest.ExperienceYears,
			Fee:                profileRequest.Fee,
			Bio:                profileRequest.Bio,
			LicenseNo:          profileRequest.LicenseNo,
			VerificationStatus: models.VerificationPending,
		}
		if err := h.db.Create(&profile).Error; err != nil {
			http.Error(w, "Error creating profile", http.StatusInternalServerError)
			return
		}
	case err != nil:
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	default:
		if profile.VerificationStatus == models.VerificationSuspended {
			http.Error(w, "Account is suspended", http.StatusForbidden)
			return
		}

		profile.Specialization = profileRequest.Specialization
		profile.ExperienceYears = profileRequest.ExperienceYears
		profile.Fee = profileRequest.Fee
		profile.Bio = profileRequest.Bio
		profile.LicenseNo = profileRequest.LicenseNo
		// Any edit drops the profile back into the verification queue.
		profile.VerificationStatus = models.VerificationPending
		profile.RejectionReason = ""
		if err := h.db.Save(&profile).Error; err != nil {
			http.Error(w, "Error updating profile", http.StatusInternalServerError)
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile saved",
		"profile": profile,
	})
}

func (h *Handler) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var profile models.DoctorProfile
	if err := h.db.Preload("User").Where("user_id = ?", doctorID).First(&profile).Error; err != nil {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var profile models.DoctorProfile
	if err := h.db.Where("user_id = ?", doctorID).First(&profile).Error; err != nil {
		http.Error(w, "Create a profile before uploading documents", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(utils.MaxDocumentSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		http.Error(w, "Document file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := utils.SaveDocument(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A new credential document restarts verification.
	profile.DocUploadURL = url
	profile.VerificationStatus = models.VerificationPending
	profile.RejectionReason = ""
	if err := h.db.Save(&profile).Error; err != nil {
		http.Error(w, "Error saving document", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message":      "Document uploaded, profile pending verification",
		"document_url": url,
	})
}

func (h *Handler) handleRequestReverification(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profile, err := verification.RequestReverification(h.db, doctorID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.notifier.Send(0, models.RoleAdmin, models.NotificationVerification,
		"Reverification Requested", "A doctor has requested reverification",
		map[string]interface{}{"doctor_id": doctorID})

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Reverification requested, awaiting admin review",
		"profile": profile,
	})
}

// handleListDoctors is the public directory: verified, active doctors only,
// with optional filters.
func (h *Handler) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&models.DoctorProfile{}).
		Preload("User").
		Joins("JOIN users ON users.id = doctor_profiles.user_id").
		Where("doctor_profiles.verification_status = ?", models.VerificationVerified).
		Where("users.is_active = ?", true).
		Where("users.deleted_at IS NULL")

	if specialization := r.URL.Query().Get("specialization"); specialization != "" {
		query = query.Where("doctor_profiles.specialization = ?", specialization)
	}
	if maxFee := r.URL.Query().Get("max_fee"); maxFee != "" {
		fee, err := strconv.ParseFloat(maxFee, 64)
		if err != nil {
			http.Error(w, "Invalid max_fee value", http.StatusBadRequest)
			return
		}
		query = query.Where("doctor_profiles.fee <= ?", fee)
	}
	if q := r.URL.Query().Get("q"); q != "" {
		pattern := "%" + q + "%"
		query = query.Where("users.name LIKE ? OR doctor_profiles.specialization LIKE ?", pattern, pattern)
	}
	if minRating := r.URL.Query().Get("min_rating"); minRating != "" {
		rating, err := strconv.ParseFloat(minRating, 64)
		if err != nil {
			http.Error(w, "Invalid min_rating value", http.StatusBadRequest)
			return
		}
		query = query.Where("doctor_profiles.avg_rating >= ?", rating)
	}
	if availableOn := r.URL.Query().Get("available_on"); availableOn != "" {
		query = query.Where(
			"EXISTS (SELECT 1 FROM availability_slots WHERE availability_slots.doctor_id = doctor_profiles.user_id AND availability_slots.date = ? AND availability_slots.is_booked = ? AND availability_slots.deleted_at IS NULL)",
			availableOn, false)
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting doctors", http.StatusInternalServerError)
		return
	}

	var doctors []models.DoctorProfile
	if err := query.Order("doctor_profiles.avg_rating DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&doctors).Error; err != nil {
		http.Error(w, "Error fetching doctors", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"doctors":     doctors,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleGetDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, err := strconv.ParseUint(mux.Vars(r)["doctorId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	role := utils.GetRoleFromContext(r)

	var profile models.DoctorProfile
	if err := h.db.Preload("User").Where("user_id = ?", doctorID).First(&profile).Error; err != nil {
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}

	// Non-admins only see the public directory.
	if role != models.RoleAdmin {
		if err := verification.Bookable(h.db, uint(doctorID)); err != nil {
			http.Error(w, "Doctor not found", http.StatusNotFound)
			return
		}
	}

	var reviews []models.Review
	if err := h.db.Where("doctor_id = ?", doctorID).
		Order("created_at DESC").Limit(10).Find(&reviews).Error; err != nil {
		http.Error(w, "Error fetching reviews", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"profile":        profile,
		"recent_reviews": reviews,
	})
}
