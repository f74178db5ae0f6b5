package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Catalog is the immutable doctor directory. It is loaded once at startup and
// safe for concurrent reads.
type Catalog struct {
	doctors     []Doctor
	specialties []string
	cities      []string
}

// Load reads and parses a doctor directory from a JSON file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Catalog from raw JSON. The input is either a bare array of
// doctors or an object with a "doctors" key. Slot order from the file is
// preserved.
func Parse(data []byte) (*Catalog, error) {
	var raw []doctorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapper struct {
			Doctors []doctorJSON `json:"doctors"`
		}
		if err2 := json.Unmarshal(data, &wrapper); err2 != nil {
			return nil, fmt.Errorf("catalog: decode directory: %w", err)
		}
		raw = wrapper.Doctors
	}

	doctors := make([]Doctor, 0, len(raw))
	for i, rd := range raw {
		d := Doctor{
			ID:               rd.ID,
			Name:             rd.Name,
			Specialty:        rd.Specialty,
			City:             rd.City,
			Address:          rd.Address,
			Phone:            rd.Phone,
			Availability:     rd.Availability,
			Teleconsultation: rd.Teleconsultation,
		}
		if d.ID == "" {
			return nil, fmt.Errorf("catalog: doctor %d has no id", i)
		}
		slots, err := parseSlots(rd.Slots)
		if err != nil {
			return nil, fmt.Errorf("catalog: doctor %s: %w", d.ID, err)
		}
		teleSlots, err := parseSlots(rd.TeleSlots)
		if err != nil {
			return nil, fmt.Errorf("catalog: doctor %s: %w", d.ID, err)
		}
		d.Slots = slots
		d.TeleSlots = teleSlots
		doctors = append(doctors, d)
	}

	return &Catalog{
		doctors:     doctors,
		specialties: distinct(doctors, func(d Doctor) string { return d.Specialty }),
		cities:      distinct(doctors, func(d Doctor) string { return d.City }),
	}, nil
}

// Doctors returns all doctors in directory order.
func (c *Catalog) Doctors() []Doctor {
	return c.doctors
}

// Specialties returns the distinct specialties, sorted.
func (c *Catalog) Specialties() []string {
	return c.specialties
}

// Cities returns the distinct cities, sorted.
func (c *Catalog) Cities() []string {
	return c.cities
}

// ByID returns the doctor with the given id, or nil.
func (c *Catalog) ByID(id string) *Doctor {
	for i := range c.doctors {
		if c.doctors[i].ID == id {
			return &c.doctors[i]
		}
	}
	return nil
}

// HasSpecialty reports whether any doctor carries the specialty,
// compared case-insensitively.
func (c *Catalog) HasSpecialty(specialty string) bool {
	for _, s := range c.specialties {
		if strings.EqualFold(s, specialty) {
			return true
		}
	}
	return false
}

func parseSlots(raw []string) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	slots := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := parseSlot(s)
		if err != nil {
			return nil, fmt.Errorf("bad slot %q: %w", s, err)
		}
		slots = append(slots, t)
	}
	return slots, nil
}

func parseSlot(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp")
}

func distinct(doctors []Doctor, key func(Doctor) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range doctors {
		k := strings.TrimSpace(key(d))
		if k == "" {
			continue
		}
		lower := strings.ToLower(k)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
