package report

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"github.com/medibridge/medibridge-server/service/notify"
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
	router.HandleFunc("/reports", utils.RequireRole(h.handleCreateReport, models.RolePatient)).Methods("POST")
	router.HandleFunc("/reports/mine", utils.RequireRole(h.handleListMyReports, models.RolePatient)).Methods("GET")
	router.HandleFunc("/admin/reports", utils.RequireRole(h.handleListReports, models.RoleAdmin)).Methods("GET")
	router.HandleFunc("/admin/reports/{reportId}", utils.RequireRole(h.handleUpdateReport, models.RoleAdmin)).Methods("PATCH")
}

func validReason(reason string) bool {
	switch reason {
	case models.ReportReasonProfessionalism,
		models.ReportReasonCommunication,
		models.ReportReasonAppointmentIssues,
		models.ReportReasonOther:
		return true
	}
	return false
}

func validStatus(status string) bool {
	switch status {
	case models.ReportUnderReview, models.ReportActioned, models.ReportDismissed:
		return true
	}
	return false
}

func (h *Handler) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var reportRequest struct {
		AppointmentID uint   `json:"appointment_id"`
		Reason        string `json:"reason"`
		Description   string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reportRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if reportRequest.AppointmentID == 0 || reportRequest.Description == "" {
		http.Error(w, "appointment_id and description are required", http.StatusBadRequest)
		return
	}
	if !validReason(reportRequest.Reason) {
		http.Error(w, "Invalid report reason", http.StatusBadRequest)
		return
	}

	var appt models.Appointment
	if err := h.db.First(&appt, reportRequest.AppointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appt.PatientID != patientID {
		http.Error(w, "Not your appointment", http.StatusForbidden)
		return
	}
	// Reports are tied to a consultation that actually happened or was booked.
	if appt.Status == models.AppointmentPendingPayment {
		http.Error(w, "Appointment has not been confirmed yet", http.StatusUnprocessableEntity)
		return
	}

	report := models.Report{
		PatientID:     patientID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		Reason:        reportRequest.Reason,
		Description:   reportRequest.Description,
		Status:        models.ReportOpen,
	}
	if err := h.db.Create(&report).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "UNIQUE constraint") {
			http.Error(w, "Appointment already has a report", http.StatusConflict)
			return
		}
		http.Error(w, "Error creating report", http.StatusInternalServerError)
		return
	}

	h.notifier.Send(0, models.RoleAdmin, models.NotificationSystem,
		"New Report Filed", "A patient has filed a report against a doctor",
		map[string]interface{}{"report_id": report.ID})

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Report submitted",
		"report":  report,
	})
}

func (h *Handler) handleListMyReports(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var reports []models.Report
	if err := h.db.Preload("Doctor").
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&reports).Error; err != nil {
		http.Error(w, "Error fetching reports", http.StatusInternalServerError)
		return
	}

	// The internal note never leaves the admin surface.
	for i := range reports {
		reports[i].InternalNote = ""
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
	})
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	query := h.db.Model(&models.Report{}).
		Preload("Patient").
		Preload("Doctor")

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if doctorID := r.URL.Query().Get("doctor_id"); doctorID != "" {
		query = query.Where("doctor_id = ?", doctorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting reports", http.StatusInternalServerError)
		return
	}

	var reports []models.Report
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reports).Error; err != nil {
		http.Error(w, "Error fetching reports", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports":     reports,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// handleUpdateReport adjudicates a report. OPEN reports may move to
// UNDER_REVIEW, and any non-terminal report to ACTIONED or DISMISSED.
func (h *Handler) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	adminID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	reportID, err := strconv.ParseUint(mux.Vars(r)["reportId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid report ID", http.StatusBadRequest)
		return
	}

	var updateRequest struct {
		Status       string `json:"status"`
		InternalNote string `json:"internal_note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !validStatus(updateRequest.Status) {
		http.Error(w, "Invalid report status", http.StatusBadRequest)
		return
	}

	var report models.Report
	if err := h.db.First(&report, reportID).Error; err != nil {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}

	if report.Status == models.ReportActioned || report.Status == models.ReportDismissed {
		http.Error(w, "Report has already been resolved", http.StatusUnprocessableEntity)
		return
	}

	report.Status = updateRequest.Status
	if updateRequest.InternalNote != "" {
		report.InternalNote = updateRequest.InternalNote
	}
	if err := h.db.Save(&report).Error; err != nil {
		http.Error(w, "Error updating report", http.StatusInternalServerError)
		return
	}

	entry := models.AdminAuditLog{
		AdminID:    adminID,
		ActionType: models.AuditUpdateReport,
		TargetType: "REPORT",
		TargetID:   report.ID,
		Note:       updateRequest.InternalNote,
	}
	if err := h.db.Create(&entry).Error; err != nil {
		// Audit failure does not undo the adjudication.
		log.Printf("Error writing audit log for report %d: %v", report.ID, err)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Report updated",
		"report":  report,
	})
}
