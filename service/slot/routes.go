package slot

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"github.com/medibridge/medibridge-server/service/booking"
	"github.com/medibridge/medibridge-server/service/verification"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/slots", utils.RequireRole(h.handleCreateSlot, models.RoleDoctor)).Methods("POST")
	router.HandleFunc("/slots/mine", utils.RequireRole(h.handleListMySlots, models.RoleDoctor)).Methods("GET")
	router.HandleFunc("/slots/{slotId}", utils.RequireRole(h.handleDeleteSlot, models.RoleDoctor)).Methods("DELETE")
	router.HandleFunc("/doctors/{doctorId}/slots", utils.AuthMiddleware(h.handleListDoctorSlots)).Methods("GET")
}

func (h *Handler) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := verification.Restricted(h.db, doctorID); err != nil {
		utils.WriteError(w, err)
		return
	}

	var slotRequest struct {
		Date      string `json:"date"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&slotRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", slotRequest.Date)
	if err != nil {
		http.Error(w, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slot, err := booking.CreateSlot(h.db, doctorID, date, slotRequest.StartTime, slotRequest.EndTime)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, slot)
}

func (h *Handler) handleListMySlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.listSlots(w, r, doctorID, nil)
}

func (h *Handler) handleListDoctorSlots(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doctorID, err := strconv.ParseUint(vars["doctorId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid doctor ID", http.StatusBadRequest)
		return
	}

	// Patients only see open slots of bookable doctors.
	if err := verification.Bookable(h.db, uint(doctorID)); err != nil {
		utils.WriteError(w, err)
		return
	}

	unbooked := false
	h.listSlots(w, r, uint(doctorID), &unbooked)
}

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request, doctorID uint, forceBooked *bool) {
	filter := booking.SlotFilter{IsBooked: forceBooked}

	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			http.Error(w, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.Date = &date
	}
	if forceBooked == nil {
		if bookedStr := r.URL.Query().Get("is_booked"); bookedStr != "" {
			booked, err := strconv.ParseBool(bookedStr)
			if err != nil {
				http.Error(w, "Invalid is_booked value", http.StatusBadRequest)
				return
			}
			filter.IsBooked = &booked
		}
	}

	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))

	slots, total, err := booking.ListSlots(h.db, doctorID, filter)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"slots":       slots,
		"total":       total,
		"page":        filter.Page,
		"page_size":   filter.PageSize,
		"total_pages": (total + int64(filter.PageSize) - 1) / int64(filter.PageSize),
	})
}

func (h *Handler) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	doctorID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	slotID, err := strconv.ParseUint(vars["slotId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid slot ID", http.StatusBadRequest)
		return
	}

	if err := booking.DeleteSlot(h.db, doctorID, uint(slotID)); err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Slot deleted successfully",
	})
}
