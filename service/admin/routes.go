package admin

import (
	"encoding/json"
	"log"
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
	router.HandleFunc("/admin/doctors/pending", utils.RequireRole(h.handlePendingDoctors, models.RoleAdmin)).Methods("GET")
	router.HandleFunc("/admin/doctors/{doctorId}/verify", utils.RequireRole(h.handleVerifyDoctor, models.RoleAdmin)).Methods("POST")
	router.HandleFunc("/admin/doctors/{doctorId}/reject", utils.RequireRole(h.handleRejectDoctor, models.RoleAdmin)).Methods("POST")
	router.HandleFunc("/admin/doctors/{doctorId}/suspend", utils.RequireRole(h.handleSuspendDoctor, models.RoleAdmin)).Methods("POST")
	router.HandleFunc("/admin/doctors/{doctorId}/unsuspend", utils.RequireRole(h.handleUnsuspendDoctor, models.RoleAdmin)).Methods("POST")
	router.HandleFunc("/admin/doctors/{doctorId}", utils.RequireRole(h.handleEditDoctor, models.RoleAdmin)).Methods("PATCH")
	router.HandleFunc("/admin/audit-logs", utils.RequireRole(h.handleListAuditLogs, models.RoleAdmin)).Methods("GET")
	router.HandleFunc("/admin/stats", utils.RequireRole(h.handleStats, models.RoleAdmin)).Methods("GET")
}

// audit records an admin action. Logging failures never block the action
// itself.
func (h *Handler) audit(adminID uint, actionType string, targetID uint, note string, metadata map[string]interface{}) {
	meta := ""
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			meta = string(raw)
		}
	}

	entry := models.AdminAuditLog{
		AdminID:    adminID,
		ActionType: actionType,
		TargetType: "DOCTOR",
		TargetID:   targetID,
		Note:       note,
		Metadata:   meta,
	}
	if err := h.db.Create(&entry).Error; err != nil {
		log.Printf("Error writing audit log: %v", err)
	}
}

func (h *Handler) handlePendingDoctors(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	query := h.db.Model(&models.DoctorProfile{}).
		Preload("User").
		Where("verification_status = ?", models.VerificationPending)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting pending doctors", http.StatusInternalServerError)
		return
	}

	var profiles []models.DoctorProfile
	if err := query.Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&profiles).Error; err != nil {
		http.Error(w, "Error fetching pending doctors", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"doctors":     profiles,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleVerifyDoctor(w http.ResponseWriter, r *http.Request) {
	adminID, doctorID, ok := h.adminAndDoctor(w, r)
	if !ok {
		return
	}

	profile, err := verification.Decide(h.db, doctorID, true, "")
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.audit(adminID, models.AuditVerifyDoctor, doctorID, "", nil)
	h.notifier.VerificationEvent(doctorID, models.VerificationVerified, "")
	h.emailDecision(doctorID, "Profile Verified",
		"Congratulations, your doctor profile has been verified. Patients can now book appointments with you.")

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Doctor verified",
		"profile": profile,
	})
}

func (h *Handler) handleRejectDoctor(w http.ResponseWriter, r *http.Request) {
	adminID, doctorID, ok := h.adminAndDoctor(w, r)
	if !ok {
		return
	}

	var rejectRequest struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&rejectRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if rejectRequest.Reason == "" {
		http.Error(w, "Rejection reason is required", http.StatusBadRequest)
		return
	}

	profile, err := verification.Decide(h.db, doctorID, false, rejectRequest.Reason)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.audit(adminID, models.AuditRejectDoctor, doctorID, rejectRequest.Reason, nil)
	h.notifier.VerificationEvent(doctorID, models.VerificationRejected, rejectRequest.Reason)
	h.emailDecision(doctorID, "Profile Rejected",
		"Your doctor profile was rejected: "+rejectRequest.Reason)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Doctor rejected",
		"profile": profile,
	})
}

func (h *Handler) handleSuspendDoctor(w http.ResponseWriter, r *http.Request) {
	adminID, doctorID, ok := h.adminAndDoctor(w, r)
	if !ok {
		return
	}

	var suspendRequest struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&suspendRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := verification.Suspend(h.db, doctorID, suspendRequest.Reason)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.audit(adminID, models.AuditSuspendDoctor, doctorID, suspendRequest.Reason, nil)
	h.notifier.VerificationEvent(doctorID, models.VerificationSuspended, suspendRequest.Reason)
	h.emailDecision(doctorID, "Account Suspended",
		"Your account has been suspended: "+suspendRequest.Reason)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Doctor suspended",
		"profile": profile,
	})
}

func (h *Handler) handleUnsuspendDoctor(w http.ResponseWriter, r *http.Request) {
	adminID, doctorID, ok := h.adminAndDoctor(w, r)
	if !ok {
		return
	}

	user, err := verification.Unsuspend(h.db, doctorID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.audit(adminID, models.AuditUnsuspendDoctor, doctorID, "", nil)
	h.notifier.VerificationEvent(doctorID, "UNSUSPENDED", "")
	h.emailDecision(doctorID, "Account Unsuspended",
		"Your account has been unsuspended. Your profile is pending re-verification.")

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Doctor unsuspended",
		"user":    user,
	})
}

// handleEditDoctor lets an admin correct profile fields. Clients send several
// spellings for the same field, so both are accepted.
func (h *Handler) handleEditDoctor(w http.ResponseWriter, r *http.Request) {
	adminID, doctorID, ok := h.adminAndDoctor(w, r)
	if !ok {
		return
	}

	var editRequest map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&editRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, doctorID).Error; err != nil {
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}
	if user.Role != models.RoleDoctor {
		http.Error(w, "Doctor not found", http.StatusNotFound)
		return
	}
	var profile models.DoctorProfile
	if err := h.db.Where("user_id = ?", doctorID).First(&profile).Error; err != nil {
		http.Error(w, "Doctor profile not found", http.StatusNotFound)
		return
	}

	changed := map[string]interface{}{}
	if name, ok := stringField(editRequest, "name", "fullName"); ok {
		user.Name = name
		changed["name"] = name
	}
	if phone, ok := stringField(editRequest, "phone", "phoneNumber"); ok {
		user.Phone = phone
		changed["phone"] = phone
	}
	if specialization, ok := stringField(editRequest, "specialization", "department"); ok {
		profile.Specialization = specialization
		changed["specialization"] = specialization
	}
	if fee, ok := floatField(editRequest, "fee", "consultationFee"); ok {
		if fee < 0 {
			http.Error(w, "fee must not be negative", http.StatusBadRequest)
			return
		}
		profile.Fee = fee
		changed["fee"] = fee
	}
	if bio, ok := stringField(editRequest, "bio"); ok {
		profile.Bio = bio
		changed["bio"] = bio
	}

	if len(changed) == 0 {
		http.Error(w, "No editable fields in request", http.StatusBadRequest)
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&user).Error; err != nil {
			return err
		}
		return tx.Save(&profile).Error
	})
	if err != nil {
		http.Error(w, "Error updating doctor", http.StatusInternalServerError)
		return
	}

	h.audit(adminID, models.AuditEditDoctor, doctorID, "", changed)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Doctor updated",
		"profile": profile,
	})
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 50
	}

	query := h.db.Model(&models.AdminAuditLog{})
	if actionType := r.URL.Query().Get("action_type"); actionType != "" {
		query = query.Where("action_type = ?", actionType)
	}
	if targetID := r.URL.Query().Get("target_id"); targetID != "" {
		query = query.Where("target_id = ?", targetID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting audit logs", http.StatusInternalServerError)
		return
	}

	var logs []models.AdminAuditLog
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		http.Error(w, "Error fetching audit logs", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":        logs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	var stats struct {
		TotalPatients     int64   `json:"total_patients"`
		TotalDoctors      int64   `json:"total_doctors"`
		VerifiedDoctors   int64   `json:"verified_doctors"`
		PendingDoctors    int64   `json:"pending_doctors"`
		TotalAppointments int64   `json:"total_appointments"`
		CompletedVisits   int64   `json:"completed_visits"`
		OpenReports       int64   `json:"open_reports"`
		TotalRevenue      float64 `json:"total_revenue"`
		TotalRefunded     float64 `json:"total_refunded"`
	}

	h.db.Model(&models.User{}).Where("role = ?", models.RolePatient).Count(&stats.TotalPatients)
	h.db.Model(&models.User{}).Where("role = ?", models.RoleDoctor).Count(&stats.TotalDoctors)
	h.db.Model(&models.DoctorProfile{}).Where("verification_status = ?", models.VerificationVerified).Count(&stats.VerifiedDoctors)
	h.db.Model(&models.DoctorProfile{}).Where("verification_status = ?", models.VerificationPending).Count(&stats.PendingDoctors)
	h.db.Model(&models.Appointment{}).Count(&stats.TotalAppointments)
	h.db.Model(&models.Appointment{}).Where("status = ?", models.AppointmentCompleted).Count(&stats.CompletedVisits)
	h.db.Model(&models.Report{}).Where("status = ?", models.ReportOpen).Count(&stats.OpenReports)
	h.db.Model(&models.Payment{}).
		Where("status IN ?", []string{models.PaymentSuccess, models.PaymentRefunded}).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.TotalRevenue)
	h.db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentRefunded).
		Select("COALESCE(SUM(refund_amount), 0)").Scan(&stats.TotalRefunded)

	utils.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) adminAndDoctor(w http.ResponseWriter, r *http.Request) (adminID, doctorID uint, ok bool) {
	adminID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, 0, false
	}

	id, err := strconv.ParseUint(mux.Vars(r)["doctorId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return 0, 0, false
	}
	return adminID, uint(id), true
}

func (h *Handler) emailDecision(doctorUserID uint, subject, body string) {
	var user models.User
	if err := h.db.First(&user, doctorUserID).Error; err != nil {
		log.Printf("Error loading doctor %d for decision email: %v", doctorUserID, err)
		return
	}
	notify.SendEmailAsync(user.Email, subject, body)
}

func stringField(body map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if raw, exists := body[key]; exists {
			if value, isString := raw.(string); isString {
				return value, true
			}
		}
	}
	return "", false
}

func floatField(body map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, exists := body[key]; exists {
			if value, isFloat := raw.(float64); isFloat {
				return value, true
			}
		}
	}
	return 0, false
}
