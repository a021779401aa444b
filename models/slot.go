package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Working window for examination slots
const (
	SlotStepMinutes = 15

	FirstSlot Slot = 8 * 60
	LastSlot  Slot = 16*60 + 45
)

// Slot is a 15-minute time bucket, stored as minutes after midnight
type Slot int

// ParseSlot parses an "HH:MM" 24-hour string and checks it lies on the
// 15-minute grid between FirstSlot and LastSlot (both inclusive).
func ParseSlot(value string) (Slot, error) {
	t, err := time.Parse("15:04", value)
	if err != nil || len(value) != 5 {
		return 0, fmt.Errorf("time slot %q is not in HH:MM format", value)
	}

	slot := Slot(t.Hour()*60 + t.Minute())
	if int(slot)%SlotStepMinutes != 0 {
		return 0, fmt.Errorf("time slot %s is not on the %d-minute grid", value, SlotStepMinutes)
	}
	if slot < FirstSlot || slot > LastSlot {
		return 0, fmt.Errorf("time slot %s is outside the working window %s-%s", value, FirstSlot, LastSlot)
	}
	return slot, nil
}

// String renders the slot as "HH:MM"
func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", int(s)/60, int(s)%60)
}

// MarshalJSON stores slots in their HH:MM form
func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts only grid-valid HH:MM strings
func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSlot(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AllSlots lists every bookable slot of a working day in order
func AllSlots() []Slot {
	slots := make([]Slot, 0, int(LastSlot-FirstSlot)/SlotStepMinutes+1)
	for s := FirstSlot; s <= LastSlot; s += SlotStepMinutes {
		slots = append(slots, s)
	}
	return slots
}
