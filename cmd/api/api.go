package api

import (
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/medibridge/medibridge-server/service/admin"
	"github.com/medibridge/medibridge-server/service/appointment"
	"github.com/medibridge/medibridge-server/service/chat"
	"github.com/medibridge/medibridge-server/service/doctor"
	"github.com/medibridge/medibridge-server/service/healthrecord"
	"github.com/medibridge/medibridge-server/service/notification"
	"github.com/medibridge/medibridge-server/service/notify"
	"github.com/medibridge/medibridge-server/service/prescription"
	"github.com/medibridge/medibridge-server/service/report"
	"github.com/medibridge/medibridge-server/service/review"
	"github.com/medibridge/medibridge-server/service/slot"
	"github.com/medibridge/medibridge-server/service/user"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	notifier := notify.NewDispatcher(s.db)

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	doctorHandler := doctor.NewHandler(s.db, notifier)
	doctorHandler.RegisterRoutes(subrouter)

	slotHandler := slot.NewHandler(s.db)
	slotHandler.RegisterRoutes(subrouter)

	appointmentHandler := appointment.NewHandler(s.db, notifier)
	appointmentHandler.RegisterRoutes(subrouter)

	reviewHandler := review.NewHandler(s.db)
	reviewHandler.RegisterRoutes(subrouter)

	reportHandler := report.NewHandler(s.db, notifier)
	reportHandler.RegisterRoutes(subrouter)

	prescriptionHandler := prescription.NewHandler(s.db, notifier)
	prescriptionHandler.RegisterRoutes(subrouter)

	healthRecordHandler := healthrecord.NewHandler(s.db)
	healthRecordHandler.RegisterRoutes(subrouter)

	chatHandler := chat.NewHandler(s.db, notifier)
	chatHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	adminHandler := admin.NewHandler(s.db, notifier)
	adminHandler.RegisterRoutes(subrouter)

	// Uploaded verification documents are served statically.
	router.PathPrefix("/documents/").Handler(
		http.StripPrefix("/documents/", http.FileServer(http.Dir("uploads/documents"))))

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, handlers.LoggingHandler(log.Writer(), corsHandler(router)))
}
