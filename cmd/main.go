package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/medibridge/medibridge-server/cmd/api"
	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/db"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := map[interface{}]string{
		&models.User{}:                "User",
		&models.DoctorProfile{}:       "DoctorProfile",
		&models.PasswordResetToken{}:  "PasswordResetToken",
		&models.AvailabilitySlot{}:    "AvailabilitySlot",
		&models.Appointment{}:         "Appointment",
		&models.Payment{}:             "Payment",
		&models.Review{}:              "Review",
		&models.Report{}:              "Report",
		&models.Prescription{}:        "Prescription",
		&models.HealthRecord{}:        "HealthRecord",
		&models.ConsultationMessage{}: "ConsultationMessage",
		&models.Notification{}:        "Notification",
		&models.Device{}:              "Device",
		&models.AdminAuditLog{}:       "AdminAuditLog",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	directories := []string{
		"uploads/documents",
	}
	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			log.Fatalf("Error creating directory %s: %v", dir, err)
		}
		log.Printf("Directory %s created/verified", dir)
	}

	log.Println("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	log.Println("Shutting down server...")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		tables = []interface{}{
			&models.AdminAuditLog{},
			&models.Device{},
			&models.Notification{},
			&models.ConsultationMessage{},
			&models.HealthRecord{},
			&models.Prescription{},
			&models.Report{},
			&models.Review{},
			&models.Payment{},
			&models.Appointment{},
			&models.AvailabilitySlot{},
			&models.PasswordResetToken{},
			&models.DoctorProfile{},
			&models.User{},
		}
	}

	log.Println("Dropping tables...")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		for _, table := range strings.Split(tableNames, ",") {
			switch strings.TrimSpace(table) {
			case "User":
				tables = append(tables, &models.User{})
			case "DoctorProfile":
				tables = append(tables, &models.DoctorProfile{})
			case "PasswordResetToken":
				tables = append(tables, &models.PasswordResetToken{})
			case "AvailabilitySlot":
				tables = append(tables, &models.AvailabilitySlot{})
			case "Appointment":
				tables = append(tables, &models.Appointment{})
			case "Payment":
				tables = append(tables, &models.Payment{})
			case "Review":
				tables = append(tables, &models.Review{})
			case "Report":
				tables = append(tables, &models.Report{})
			case "Prescription":
				tables = append(tables, &models.Prescription{})
			case "HealthRecord":
				tables = append(tables, &models.HealthRecord{})
			case "ConsultationMessage":
				tables = append(tables, &models.ConsultationMessage{})
			case "Notification":
				tables = append(tables, &models.Notification{})
			case "Device":
				tables = append(tables, &models.Device{})
			case "AdminAuditLog":
				tables = append(tables, &models.AdminAuditLog{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}

	log.Println("Database cleared successfully")
}
