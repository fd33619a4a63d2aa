package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reviews", utils.RequireRole(h.handleCreateReview, models.RolePatient)).Methods("POST")
	router.HandleFunc("/doctors/{doctorId}/reviews", utils.AuthMiddleware(h.handleListDoctorReviews)).Methods("GET")
	router.HandleFunc("/reviews/mine", utils.RequireRole(h.handleListMyReviews, models.RolePatient)).Methods("GET")
}

// Create records a review for a completed appointment and recomputes the
// doctor's rating aggregate from all review rows in the same transaction.
func Create(db *gorm.DB, patientID, appointmentID uint, rating float64, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", utils.ErrValidation)
	}

	var review models.Review
	err := db.Transaction(func(tx *gorm.DB) error {
		var appt models.Appointment
		if err := tx.First(&appt, appointmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: appointment not found", utils.ErrNotFound)
			}
			return err
		}
		if appt.PatientID != patientID {
			return fmt.Errorf("%w: not your appointment", utils.ErrForbidden)
		}
		if appt.Status != models.AppointmentCompleted {
			return fmt.Errorf("%w: only completed appointments can be reviewed", utils.ErrInvalidState)
		}

		var existing models.Review
		err := tx.Where("appointment_id = ?", appointmentID).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: appointment already reviewed", utils.ErrConflict)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		review = models.Review{
			AppointmentID: appointmentID,
			PatientID:     patientID,
			DoctorID:      appt.DoctorID,
			Rating:        rating,
			Comment:       comment,
		}
		if err := tx.Create(&review).Error; err != nil {
			return err
		}

		// Full rescan keeps the aggregate exact even after review deletions.
		var agg struct {
			Avg   float64
			Count int64
		}
		if err := tx.Model(&models.Review{}).
			Where("doctor_id = ?", appt.DoctorID).
			Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
			Scan(&agg).Error; err != nil {
			return err
		}

		return tx.Model(&models.DoctorProfile{}).
			Where("user_id = ?", appt.DoctorID).
			Updates(map[string]interface{}{
				"avg_rating":    agg.Avg,
				"total_reviews": agg.Count,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (h *Handler) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var reviewRequest struct {
		AppointmentID uint    `json:"appointment_id"`
		Rating        float64 `json:"rating"`
		Comment       string  `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reviewRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if reviewRequest.AppointmentID == 0 {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	review, err := Create(h.db, patientID, reviewRequest.AppointmentID, reviewRequest.Rating, reviewRequest.Comment)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Review submitted",
		"review":  review,
	})
}

func (h *Handler) handleListDoctorReviews(w http.ResponseWriter, r *http.Request) {
	doctorID, err := strconv.ParseUint(mux.Vars(r)["doctorId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	query := h.db.Model(&models.Review{}).
		Preload("Patient").
		Where("doctor_id = ?", doctorID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting reviews", http.StatusInternalServerError)
		return
	}

	var reviews []models.Review
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reviews).Error; err != nil {
		http.Error(w, "Error fetching reviews", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reviews":     reviews,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleListMyReviews(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var reviews []models.Review
	if err := h.db.Preload("Doctor").
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		http.Error(w, "Error fetching reviews", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reviews": reviews,
	})
}
