package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
	"gorm.io/gorm"
)

// SlotFilter narrows ListSlots results.
type SlotFilter struct {
	Date     *time.Time
	IsBooked *bool
	Page     int
	PageSize int
}

// CreateSlot registers a new bookable window for a doctor. Overlapping
// windows on the same date are rejected.
func CreateSlot(db *gorm.DB, doctorID uint, date time.Time, startTime, endTime string) (*models.AvailabilitySlot, error) {
	start, err := time.Parse("15:04", startTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start time must be HH:MM", utils.ErrValidation)
	}
	end, err := time.Parse("15:04", endTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end time must be HH:MM", utils.ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end time must be after start time", utils.ErrValidation)
	}

	var existing models.AvailabilitySlot
	overlap := db.Where("doctor_id = ? AND date = ? AND start_time < ? AND end_time > ?",
		doctorID, date, endTime, startTime).First(&existing)
	if overlap.Error == nil {
		return nil, fmt.Errorf("%w: slot overlaps with existing availability", utils.ErrConflict)
	}
	if !errors.Is(overlap.Error, gorm.ErrRecordNotFound) {
		return nil, overlap.Error
	}

	slot := models.AvailabilitySlot{
		DoctorID:  doctorID,
		Date:      date,
		StartTime: startTime,
		EndTime:   endTime,
		IsBooked:  false,
	}
	if err := db.Create(&slot).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListSlots returns a page of a doctor's slots plus the total match count.
func ListSlots(db *gorm.DB, doctorID uint, filter SlotFilter) ([]models.AvailabilitySlot, int64, error) {
	query := db.Model(&models.AvailabilitySlot{}).Where("doctor_id = ?", doctorID)

	if filter.Date != nil {
		query = query.Where("date = ?", *filter.Date)
	}
	if filter.IsBooked != nil {
		query = query.Where("is_booked = ?", *filter.IsBooked)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var slots []models.AvailabilitySlot
	err := query.Order("date ASC, start_time ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&slots).Error
	if err != nil {
		return nil, 0, err
	}
	return slots, total, nil
}

// DeleteSlot removes an unbooked slot owned by the doctor.
func DeleteSlot(db *gorm.DB, doctorID, slotID uint) error {
	var slot models.AvailabilitySlot
	if err := db.Where("id = ? AND doctor_id = ?", slotID, doctorID).First(&slot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: slot not found", utils.ErrNotFound)
		}
		return err
	}
	if slot.IsBooked {
		return fmt.Errorf("%w: cannot delete a booked slot", utils.ErrConflict)
	}
	return db.Delete(&slot).Error
}

// ClaimSlot flips an unbooked slot to booked. The check-and-set is a single
// conditional UPDATE so two concurrent claims cannot both succeed; losing the
// race surfaces as a conflict, never as silent success.
func ClaimSlot(db *gorm.DB, slotID uint) error {
	res := db.Model(&models.AvailabilitySlot{}).
		Where("id = ? AND is_booked = ?", slotID, false).
		Update("is_booked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var slot models.AvailabilitySlot
		if err := db.First(&slot, slotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: slot not found", utils.ErrNotFound)
			}
			return err
		}
		return fmt.Errorf("%w: slot already booked", utils.ErrConflict)
	}
	return nil
}

// ReleaseSlot marks a slot unbooked. Idempotent: releasing an already-free
// slot is not an error.
func ReleaseSlot(db *gorm.DB, slotID uint) error {
	res := db.Model(&models.AvailabilitySlot{}).
		Where("id = ?", slotID).
		Update("is_booked", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var slot models.AvailabilitySlot
		if err := db.First(&slot, slotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: slot not found", utils.ErrNotFound)
			}
			return err
		}
	}
	return nil
}
