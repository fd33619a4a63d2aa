package prescription

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/lib/pq"
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
	router.HandleFunc("/prescriptions", utils.RequireRole(h.handleCreatePrescription, models.RoleDoctor)).Methods("POST")
	router.HandleFunc("/prescriptions/mine", utils.RequireRole(h.handleListMyPrescriptions, models.RolePatient)).Methods("GET")
	router.HandleFunc("/prescriptions/issued", utils.RequireRole(h.handleListIssued, models.RoleDoctor)).Methods("GET")
	router.HandleFunc("/appointments/{appointmentId}/prescription", utils.AuthMiddleware(h.handleGetByAppointment)).Methods("GET")
}

func (h *Handler) handleCreatePrescription(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := verification.Restricted(h.db, doctorID); err != nil {
		utils.WriteError(w, err)
		return
	}

	var prescriptionRequest struct {
		AppointmentID uint     `json:"appointment_id"`
		Diagnosis     string   `json:"diagnosis"`
		Medicines     []string `json:"medicines"`
		Advice        string   `json:"advice"`
		FollowUpDate  string   `json:"follow_up_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&prescriptionRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if prescriptionRequest.AppointmentID == 0 || prescriptionRequest.Diagnosis == "" {
		http.Error(w, "appointment_id and diagnosis are required", http.StatusBadRequest)
		return
	}
	if len(prescriptionRequest.Medicines) == 0 {
		http.Error(w, "At least one medicine is required", http.StatusBadRequest)
		return
	}

	var followUp *time.Time
	if prescriptionRequest.FollowUpDate != "" {
		date, err := time.Parse("2006-01-02", prescriptionRequest.FollowUpDate)
		if err != nil {
			http.Error(w, "Invalid follow_up_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		followUp = &date
	}

	var appt models.Appointment
	if err := h.db.First(&appt, prescriptionRequest.AppointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appt.DoctorID != doctorID {
		http.Error(w, "Not your appointment", http.StatusForbidden)
		return
	}
	if appt.Status != models.AppointmentCompleted {
		http.Error(w, "Prescriptions can only be issued for completed appointments", http.StatusUnprocessableEntity)
		return
	}

	prescription := models.Prescription{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      doctorID,
		Diagnosis:     prescriptionRequest.Diagnosis,
		Medicines:     pq.StringArray(prescriptionRequest.Medicines),
		Advice:        prescriptionRequest.Advice,
		FollowUpDate:  followUp,
	}
	if err := h.db.Create(&prescription).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			http.Error(w, "Appointment already has a prescription", http.StatusConflict)
			return
		}
		http.Error(w, "Error creating prescription", http.StatusInternalServerError)
		return
	}

	h.notifier.Send(appt.PatientID, models.RolePatient, models.NotificationPrescription,
		"New Prescription", "Your doctor has issued a prescription for your appointment",
		map[string]interface{}{"prescription_id": prescription.ID, "appointment_id": appt.ID})

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Prescription issued",
		"prescription": prescription,
	})
}

func (h *Handler) handleListMyPrescriptions(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.listPrescriptions(w, r, "patient_id", patientID, "Doctor")
}

func (h *Handler) handleListIssued(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.listPrescriptions(w, r, "doctor_id", doctorID, "Patient")
}

func (h *Handler) listPrescriptions(w http.ResponseWriter, r *http.Request, column string, userID uint, preload string) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	query := h.db.Model(&models.Prescription{}).
		Preload(preload).
		Where(column+" = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting prescriptions", http.StatusInternalServerError)
		return
	}

	var prescriptions []models.Prescription
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&prescriptions).Error; err != nil {
		http.Error(w, "Error fetching prescriptions", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"prescriptions": prescriptions,
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
		"total_pages":   (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleGetByAppointment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	appointmentID, err := strconv.ParseUint(mux.Vars(r)["appointmentId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var prescription models.Prescription
	if err := h.db.Where("appointment_id = ?", appointmentID).First(&prescription).Error; err != nil {
		http.Error(w, "Prescription not found", http.StatusNotFound)
		return
	}

	if role != models.RoleAdmin && prescription.PatientID != userID && prescription.DoctorID != userID {
		http.Error(w, "Not authorized to view this prescription", http.StatusForbidden)
		return
	}

	utils.WriteJSON(w, http.StatusOK, prescription)
}
