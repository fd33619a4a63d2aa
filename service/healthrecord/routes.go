package healthrecord

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

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
	router.HandleFunc("/health-records", utils.RequireRole(h.handleCreateRecord, models.RolePatient)).Methods("POST")
	router.HandleFunc("/health-records", utils.RequireRole(h.handleListMyRecords, models.RolePatient)).Methods("GET")
	router.HandleFunc("/health-records/{recordId}", utils.RequireRole(h.handleDeleteRecord, models.RolePatient)).Methods("DELETE")
	router.HandleFunc("/patients/{patientId}/health-records", utils.RequireRole(h.handleListPatientRecords, models.RoleDoctor)).Methods("GET")
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var recordRequest struct {
		Date       string   `json:"date"`
		Systolic   *int     `json:"systolic"`
		Diastolic  *int     `json:"diastolic"`
		BloodSugar *float64 `json:"blood_sugar"`
		Weight     *float64 `json:"weight"`
		Height     *float64 `json:"height"`
		Notes      string   `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&recordRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	date := time.Now()
	if recordRequest.Date != "" {
		parsed, err := time.Parse("2006-01-02", recordRequest.Date)
		if err != nil {
			http.Error(w, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	if recordRequest.Systolic == nil && recordRequest.Diastolic == nil &&
		recordRequest.BloodSugar == nil && recordRequest.Weight == nil &&
		recordRequest.Height == nil && recordRequest.Notes == "" {
		http.Error(w, "At least one metric or note is required", http.StatusBadRequest)
		return
	}

	record := models.HealthRecord{
		PatientID:  patientID,
		Date:       date,
		Systolic:   recordRequest.Systolic,
		Diastolic:  recordRequest.Diastolic,
		BloodSugar: recordRequest.BloodSugar,
		Weight:     recordRequest.Weight,
		Height:     recordRequest.Height,
		Notes:      recordRequest.Notes,
	}
	if err := h.db.Create(&record).Error; err != nil {
		http.Error(w, "Error creating health record", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleListMyRecords(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.listRecords(w, r, patientID)
}

// handleListPatientRecords lets a doctor view a patient's records, but only
// when they share a confirmed or completed appointment.
func (h *Handler) handleListPatientRecords(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	patientID, err := strconv.ParseUint(mux.Vars(r)["patientId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	var count int64
	if err := h.db.Model(&models.Appointment{}).
		Where("doctor_id = ? AND patient_id = ? AND status IN ?",
			doctorID, patientID,
			[]string{models.AppointmentConfirmed, models.AppointmentCompleted}).
		Count(&count).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if count == 0 {
		http.Error(w, "No appointment relationship with this patient", http.StatusForbidden)
		return
	}

	h.listRecords(w, r, uint(patientID))
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request, patientID uint) {
	query := h.db.Model(&models.HealthRecord{}).Where("patient_id = ?", patientID)

	if from := r.URL.Query().Get("from"); from != "" {
		date, err := time.Parse("2006-01-02", from)
		if err != nil {
			http.Error(w, "Invalid from date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		query = query.Where("date >= ?", date)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		date, err := time.Parse("2006-01-02", to)
		if err != nil {
			http.Error(w, "Invalid to date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		query = query.Where("date <= ?", date)
	}

	var records []models.HealthRecord
	if err := query.Order("date DESC").Find(&records).Error; err != nil {
		http.Error(w, "Error fetching health records", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
	})
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	recordID, err := strconv.ParseUint(mux.Vars(r)["recordId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}

	var record models.HealthRecord
	if err := h.db.First(&record, recordID).Error; err != nil {
		http.Error(w, "Health record not found", http.StatusNotFound)
		return
	}
	if record.PatientID != patientID {
		http.Error(w, "Not your health record", http.StatusForbidden)
		return
	}

	if err := h.db.Delete(&record).Error; err != nil {
		http.Error(w, "Error deleting health record", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Health record deleted",
	})
}
