package booking

import (
	"errors"
	"testing"

	"github.com/medibridge/medibridge-server/cmd/models"
	"github.com/medibridge/medibridge-server/cmd/utils"
)

func TestCreateSlotValidation(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)

	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"malformed start", "10am", "11:00"},
		{"malformed end", "10:00", "noon"},
		{"end before start", "11:00", "10:00"},
		{"zero length", "10:00", "10:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateSlot(db, doctor.ID, slotDate, tt.start, tt.end)
			if !errors.Is(err, utils.ErrValidation) {
				t.Errorf("CreateSlot(%s, %s) error = %v, want validation", tt.start, tt.end, err)
			}
		})
	}
}

func TestCreateSlotOverlapConflicts(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)

	if _, err := CreateSlot(db, doctor.ID, slotDate, "10:00", "11:00"); err != nil {
		t.Fatalf("CreateSlot() error: %v", err)
	}

	overlapping := []struct {
		start string
		end   string
	}{
		{"10:00", "11:00"},
		{"10:30", "11:30"},
		{"09:30", "10:30"},
		{"09:00", "12:00"},
		{"10:15", "10:45"},
	}
	for _, o := range overlapping {
		if _, err := CreateSlot(db, doctor.ID, slotDate, o.start, o.end); !errors.Is(err, utils.ErrConflict) {
			t.Errorf("CreateSlot(%s, %s) error = %v, want conflict", o.start, o.end, err)
		}
	}

	// Adjacent windows do not overlap.
	if _, err := CreateSlot(db, doctor.ID, slotDate, "11:00", "12:00"); err != nil {
		t.Errorf("adjacent CreateSlot() error: %v", err)
	}
	if _, err := CreateSlot(db, doctor.ID, slotDate, "09:00", "10:00"); err != nil {
		t.Errorf("adjacent CreateSlot() error: %v", err)
	}
}

func TestCreateSlotOtherDoctorMayOverlap(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	other := seedDoctor(t, db, models.VerificationVerified, 100)

	if _, err := CreateSlot(db, doctor.ID, slotDate, "10:00", "11:00"); err != nil {
		t.Fatalf("CreateSlot() error: %v", err)
	}
	if _, err := CreateSlot(db, other.ID, slotDate, "10:00", "11:00"); err != nil {
		t.Errorf("CreateSlot() for another doctor error: %v", err)
	}
}

func TestDeleteSlot(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if err := DeleteSlot(db, doctor.ID, slot.ID); err != nil {
		t.Fatalf("DeleteSlot() error: %v", err)
	}
	if err := DeleteSlot(db, doctor.ID, slot.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("deleting twice error = %v, want not found", err)
	}
}

func TestDeleteBookedSlotConflicts(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if _, err := Book(db, patient.ID, doctor.ID, slot.ID); err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	if err := DeleteSlot(db, doctor.ID, slot.ID); !errors.Is(err, utils.ErrConflict) {
		t.Errorf("DeleteSlot() on booked slot error = %v, want conflict", err)
	}
}

func TestDeleteSlotOfAnotherDoctorNotFound(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	other := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if err := DeleteSlot(db, other.ID, slot.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("DeleteSlot() by other doctor error = %v, want not found", err)
	}
}

func TestClaimSlot(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if err := ClaimSlot(db, slot.ID); err != nil {
		t.Fatalf("ClaimSlot() error: %v", err)
	}
	if err := ClaimSlot(db, slot.ID); !errors.Is(err, utils.ErrConflict) {
		t.Errorf("second ClaimSlot() error = %v, want conflict", err)
	}
	if err := ClaimSlot(db, 9999); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("ClaimSlot() on missing slot error = %v, want not found", err)
	}
}

func TestReleaseSlotIdempotent(t *testing.T) {
	db := newTestDB(t)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	slot := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if err := ClaimSlot(db, slot.ID); err != nil {
		t.Fatalf("ClaimSlot() error: %v", err)
	}
	if err := ReleaseSlot(db, slot.ID); err != nil {
		t.Fatalf("ReleaseSlot() error: %v", err)
	}
	if err := ReleaseSlot(db, slot.ID); err != nil {
		t.Errorf("releasing a free slot error = %v, want nil", err)
	}
	if err := ReleaseSlot(db, 9999); !errors.Is(err, utils.ErrNotFound) {
		t.Errorf("ReleaseSlot() on missing slot error = %v, want not found", err)
	}
}

func TestListSlots(t *testing.T) {
	db := newTestDB(t)
	patient := seedPatient(t, db)
	doctor := seedDoctor(t, db, models.VerificationVerified, 100)
	open := seedSlot(t, db, doctor.ID, slotDate, "09:00", "09:30")
	booked := seedSlot(t, db, doctor.ID, slotDate, "10:00", "10:30")

	if _, err := Book(db, patient.ID, doctor.ID, booked.ID); err != nil {
		t.Fatalf("Book() error: %v", err)
	}

	unbooked := false
	slots, total, err := ListSlots(db, doctor.ID, SlotFilter{IsBooked: &unbooked})
	if err != nil {
		t.Fatalf("ListSlots() error: %v", err)
	}
	if total != 1 || len(slots) != 1 {
		t.Fatalf("ListSlots() total = %d, len = %d, want 1 and 1", total, len(slots))
	}
	if slots[0].ID != open.ID {
		t.Errorf("ListSlots() returned slot %d, want %d", slots[0].ID, open.ID)
	}

	slots, total, err = ListSlots(db, doctor.ID, SlotFilter{})
	if err != nil {
		t.Fatalf("ListSlots() error: %v", err)
	}
	if total != 2 {
		t.Errorf("unfiltered total = %d, want 2", total)
	}
	if len(slots) == 2 && slots[0].StartTime > slots[1].StartTime {
		t.Error("slots are not ordered by start time")
	}
}
