package catalog

import "time"

// Doctor is a single entry in the practitioner directory.
type Doctor struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Specialty        string      `json:"specialty"`
	City             string      `json:"city"`
	Address          string      `json:"address"`
	Phone            string      `json:"phone"`
	Availability     string      `json:"availability,omitempty"`
	Slots            []time.Time `json:"-"`
	Teleconsultation bool        `json:"teleconsultation"`
	TeleSlots        []time.Time `json:"-"`
}

// doctorJSON mirrors the on-disk directory format where slots are timestamps
// encoded as strings.
type doctorJSON struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Specialty        string   `json:"specialty"`
	City             string   `json:"city"`
	Address          string   `json:"address"`
	Phone            string   `json:"phone"`
	Availability     string   `json:"availability,omitempty"`
	Slots            []string `json:"slots"`
	Teleconsultation bool     `json:"teleconsultation"`
	TeleSlots        []string `json:"tele_slots"`
}

// HasSlot reports whether the doctor has an in-person slot at exactly t.
func (d *Doctor) HasSlot(t time.Time) bool {
	for _, s := range d.Slots {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

// HasTeleSlotOn reports whether the doctor offers a teleconsultation slot on
// the same calendar day as t.
func (d *Doctor) HasTeleSlotOn(t time.Time) bool {
	y, m, day := t.Date()
	for _, s := range d.TeleSlots {
		sy, sm, sd := s.Date()
		if sy == y && sm == m && sd == day {
			return true
		}
	}
	return false
}
