package appointment

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"github.com/medibridge/medibridge-server/service/booking"
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
	router.HandleFunc("/appointments", utils.RequireRole(h.handleBook, models.RolePatient)).Methods("POST")
	router.HandleFunc("/appointments", utils.AuthMiddleware(h.handleList)).Methods("GET")
	router.HandleFunc("/appointments/{appointmentId}", utils.AuthMiddleware(h.handleGet)).Methods("GET")
	router.HandleFunc("/appointments/{appointmentId}/pay", utils.RequireRole(h.handlePay, models.RolePatient)).Methods("POST")
	router.HandleFunc("/appointments/{appointmentId}/cancel", utils.AuthMiddleware(h.handleCancel)).Methods("POST")
	router.HandleFunc("/appointments/{appointmentId}/complete", utils.RequireRole(h.handleComplete, models.RoleDoctor, models.RoleAdmin)).Methods("POST")
	router.HandleFunc("/appointments/{appointmentId}/reschedule", utils.AuthMiddleware(h.handleReschedule)).Methods("POST")
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var bookRequest struct {
		DoctorID uint `json:"doctor_id"`
		SlotID   uint `json:"slot_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&bookRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if bookRequest.DoctorID == 0 || bookRequest.SlotID == 0 {
		http.Error(w, "doctor_id and slot_id are required", http.StatusBadRequest)
		return
	}

	appt, err := booking.Book(h.db, patientID, bookRequest.DoctorID, bookRequest.SlotID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.notifier.AppointmentEvent(appt, models.AppointmentPendingPayment)

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Appointment created, awaiting payment",
		"appointment": appt,
	})
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	patientID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	appointmentID, err := parseAppointmentID(r)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var appt models.Appointment
	if err := h.db.First(&appt, appointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if appt.PatientID != patientID {
		http.Error(w, "Not authorized to pay for this appointment", http.StatusForbidden)
		return
	}

	var payRequest struct {
		TxnRef string `json:"txn_ref"`
	}
	// Body is optional; an empty reference gets generated.
	_ = json.NewDecoder(r.Body).Decode(&payRequest)

	payment, err := booking.ConfirmViaPayment(h.db, appointmentID, payRequest.TxnRef)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	appt.Status = models.AppointmentConfirmed
	h.notifier.AppointmentEvent(&appt, models.AppointmentConfirmed)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Payment successful, appointment confirmed",
		"payment": payment,
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	actorRole := utils.GetRoleFromContext(r)

	appointmentID, err := parseAppointmentID(r)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var cancelRequest struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&cancelRequest)

	result, err := booking.Cancel(h.db, appointmentID, actorID, actorRole, cancelRequest.Reason, time.Now())
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.notifier.AppointmentEvent(result.Appointment, models.AppointmentCancelled)
	if result.RefundAmount > 0 {
		h.notifier.RefundProcessed(result.Appointment, result.RefundAmount)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Appointment cancelled",
		"appointment":   result.Appointment,
		"refund_amount": result.RefundAmount,
	})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	actorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	actorRole := utils.GetRoleFromContext(r)

	appointmentID, err := parseAppointmentID(r)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	appt, err := booking.Complete(h.db, appointmentID, actorID, actorRole)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.notifier.Send(appt.PatientID, models.RolePatient, models.NotificationAppointment,
		"Appointment Completed", "Your appointment has been marked as completed",
		map[string]interface{}{"appointment_id": appt.ID})

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Appointment completed",
		"appointment": appt,
	})
}

func (h *Handler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	actorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	actorRole := utils.GetRoleFromContext(r)

	appointmentID, err := parseAppointmentID(r)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var rescheduleRequest struct {
		NewSlotID uint `json:"new_slot_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&rescheduleRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if rescheduleRequest.NewSlotID == 0 {
		http.Error(w, "new_slot_id is required", http.StatusBadRequest)
		return
	}

	replacement, err := booking.Reschedule(h.db, appointmentID, actorID, actorRole, rescheduleRequest.NewSlotID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.notifier.AppointmentEvent(replacement, models.AppointmentRescheduled)

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Appointment rescheduled",
		"appointment": replacement,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	query := h.db.Model(&models.Appointment{}).
		Preload("Patient").
		Preload("Doctor").
		Preload("Slot")

	switch role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", userID)
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", userID)
	case models.RoleAdmin:
		// Admins see everything.
	default:
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if from := r.URL.Query().Get("from"); from != "" {
		date, err := time.Parse("2006-01-02", from)
		if err != nil {
			http.Error(w, "Invalid from date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		query = query.Where("appointment_date >= ?", date)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		date, err := time.Parse("2006-01-02", to)
		if err != nil {
			http.Error(w, "Invalid to date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		query = query.Where("appointment_date <= ?", date)
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
		http.Error(w, "Error counting appointments", http.StatusInternalServerError)
		return
	}

	var appointments []models.Appointment
	if err := query.Order("appointment_date DESC, start_time DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&appointments).Error; err != nil {
		http.Error(w, "Error fetching appointments", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appointments,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
		"total_pages":  (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	appointmentID, err := parseAppointmentID(r)
	if err != nil {
		http.Error(w, "Invalid appointment ID", http.StatusBadRequest)
		return
	}

	var appt models.Appointment
	if err := h.db.Preload("Patient").Preload("Doctor").Preload("Slot").
		First(&appt, appointmentID).Error; err != nil {
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return
	}

	if role != models.RoleAdmin && appt.PatientID != userID && appt.DoctorID != userID {
		http.Error(w, "Not authorized to view this appointment", http.StatusForbidden)
		return
	}

	var payment models.Payment
	response := map[string]interface{}{"appointment": appt}
	if err := h.db.Where("appointment_id = ?", appt.ID).First(&payment).Error; err == nil {
		response["payment"] = payment
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func parseAppointmentID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["appointmentId"], 10, 32)
	return uint(id), err
}
