package notification

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
	router.HandleFunc("/notifications", utils.AuthMiddleware(h.handleListNotifications)).Methods("GET")
	router.HandleFunc("/notifications/unread-count", utils.AuthMiddleware(h.handleUnreadCount)).Methods("GET")
	router.HandleFunc("/notifications/{notificationId}/read", utils.AuthMiddleware(h.handleMarkRead)).Methods("POST")
	router.HandleFunc("/notifications/read-all", utils.AuthMiddleware(h.handleMarkAllRead)).Methods("POST")
	router.HandleFunc("/devices", utils.AuthMiddleware(h.handleRegisterDevice)).Methods("POST")
	router.HandleFunc("/devices/{token}", utils.AuthMiddleware(h.handleUnregisterDevice)).Methods("DELETE")
}

// visible scopes a query to notifications addressed to the user directly or
// broadcast to their role.
func (h *Handler) visible(userID uint, role string) *gorm.DB {
	return h.db.Model(&models.Notification{}).
		Where("recipient_user_id = ? OR (recipient_user_id = 0 AND recipient_role IN ?)",
			userID, []string{role, "ALL"})
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}

	query := h.visible(userID, role)
	if unread := r.URL.Query().Get("unread"); unread == "true" {
		query = query.Where("read = ?", false)
	}
	if notifType := r.URL.Query().Get("type"); notifType != "" {
		query = query.Where("type = ?", notifType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error; err != nil {
		http.Error(w, "Error fetching notifications", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
		"total_pages":   (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	var count int64
	if err := h.visible(userID, role).Where("read = ?", false).Count(&count).Error; err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]int64{
		"unread_count": count,
	})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	notificationID, err := strconv.ParseUint(mux.Vars(r)["notificationId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	var notification models.Notification
	if err := h.visible(userID, role).Where("id = ?", notificationID).First(&notification).Error; err != nil {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	now := time.Now()
	notification.Read = true
	notification.ReadAt = &now
	if err := h.db.Save(&notification).Error; err != nil {
		http.Error(w, "Error updating notification", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, notification)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role := utils.GetRoleFromContext(r)

	now := time.Now()
	result := h.visible(userID, role).Where("read = ?", false).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if result.Error != nil {
		http.Error(w, "Error updating notifications", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "All notifications marked as read",
		"updated_rows": result.RowsAffected,
	})
}

func (h *Handler) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var deviceRequest struct {
		Token      string `json:"token"`
		DeviceType string `json:"device_type"`
		DeviceName string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&deviceRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if deviceRequest.Token == "" {
		http.Error(w, "Device token is required", http.StatusBadRequest)
		return
	}

	var device models.Device
	err = h.db.Where("token = ? AND user_id = ?", deviceRequest.Token, userID).First(&device).Error
	if err == nil {
		device.DeviceType = deviceRequest.DeviceType
		device.DeviceName = deviceRequest.DeviceName
		if err := h.db.Save(&device).Error; err != nil {
			http.Error(w, "Error updating device", http.StatusInternalServerError)
			return
		}
		utils.WriteJSON(w, http.StatusOK, device)
		return
	}

	device = models.Device{
		Token:      deviceRequest.Token,
		UserID:     userID,
		DeviceType: deviceRequest.DeviceType,
		DeviceName: deviceRequest.DeviceName,
	}
	if err := h.db.Create(&device).Error; err != nil {
		http.Error(w, "Error registering device", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, device)
}

func (h *Handler) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := mux.Vars(r)["token"]
	result := h.db.Where("token = ? AND user_id = ?", token, userID).Delete(&models.Device{})
	if result.Error != nil {
		http.Error(w, "Error removing device", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Device unregistered",
	})
}
