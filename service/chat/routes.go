package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

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
	router.HandleFunc("/appointments/{appointmentId}/messages", utils.AuthMiddleware(h.handleSendMessage)).Methods("POST")
	router.HandleFunc("/appointments/{appointmentId}/messages", utils.AuthMiddleware(h.handleListMessages)).Methods("GET")
}

// participant loads the appointment and checks the caller is its patient or
// doctor and that the consultation chat is open (confirmed or completed).
func (h *Handler) participant(r *http.Request) (*models.Appointment, uint, int, string) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		return nil, 0, http.StatusUnauthorized, "Unauthorized"
	}

	appointmentID, err := strconv.ParseUint(mux.Vars(r)["appointmentId"], 10, 32)
	if err != nil {
		return nil, 0, http.StatusBadRequest, "Invalid appointment ID"
	}

	var appt models.Appointment
	if err := h.db.First(&appt, appointmentID).Error; err != nil {
		return nil, 0, http.StatusNotFound, "Appointment not found"
	}

	if appt.PatientID != userID && appt.DoctorID != userID {
		return nil, 0, http.StatusForbidden, "Not a participant of this appointment"
	}
	if appt.Status != models.AppointmentConfirmed && appt.Status != models.AppointmentCompleted {
		return nil, 0, http.StatusUnprocessableEntity, "Chat is only available for confirmed or completed appointments"
	}

	return &appt, userID, 0, ""
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	appt, userID, status, message := h.participant(r)
	if status != 0 {
		http.Error(w, message, status)
		return
	}

	var messageRequest struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&messageRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if messageRequest.Content == "" {
		http.Error(w, "Message content is required", http.StatusBadRequest)
		return
	}

	msg := models.ConsultationMessage{
		AppointmentID: appt.ID,
		SenderID:      userID,
		Content:       messageRequest.Content,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		http.Error(w, "Error sending message", http.StatusInternalServerError)
		return
	}

	recipientID := appt.PatientID
	recipientRole := models.RolePatient
	if userID == appt.PatientID {
		recipientID = appt.DoctorID
		recipientRole = models.RoleDoctor
	}
	h.notifier.Send(recipientID, recipientRole, models.NotificationChat,
		"New Message", "You have a new message in your consultation",
		map[string]interface{}{"appointment_id": appt.ID})

	utils.WriteJSON(w, http.StatusCreated, msg)
}

// handleListMessages returns messages in id order. Clients pass ?after=<id>
// to poll for messages newer than the last one they have seen.
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	appt, _, status, message := h.participant(r)
	if status != 0 {
		http.Error(w, message, status)
		return
	}

	query := h.db.Model(&models.ConsultationMessage{}).
		Preload("Sender").
		Where("appointment_id = ?", appt.ID)

	if after := r.URL.Query().Get("after"); after != "" {
		afterID, err := strconv.ParseUint(after, 10, 32)
		if err != nil {
			http.Error(w, "Invalid after cursor", http.StatusBadRequest)
			return
		}
		query = query.Where("id > ?", afterID)
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 100
	}

	var messages []models.ConsultationMessage
	if err := query.Order("id ASC").Limit(limit).Find(&messages).Error; err != nil {
		http.Error(w, "Error fetching messages", http.StatusInternalServerError)
		return
	}

	cursor := uint(0)
	if len(messages) > 0 {
		cursor = messages[len(messages)-1].ID
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"cursor":   cursor,
	})
}
