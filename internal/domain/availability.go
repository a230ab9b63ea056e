package domain

import (
	"fmt"
	"sort"
	"time"
)

type CellStatus string

const (
	CellStatusFree    CellStatus = "FREE"
	CellStatusHeld    CellStatus = "HELD"
	CellStatusBooked  CellStatus = "BOOKED"
	CellStatusBlocked CellStatus = "BLOCKED"
)

func (s CellStatus) IsValid() bool {
	switch s {
	case CellStatusFree, CellStatusHeld, CellStatusBooked, CellStatusBlocked:
		return true
	}
	return false
}

// Occupied reports whether the status carries a booking back-reference.
func (s CellStatus) Occupied() bool {
	return s == CellStatusHeld || s == CellStatusBooked
}

// LodgingUnit is immutable reference data.
type LodgingUnit struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int32  `json:"capacity"`
}

// Package is a priced product covering one or more lodging units.
type Package struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	UnitIDs          []string `json:"unit_ids"`
	WeekdayRateCents int64    `json:"weekday_rate_cents"`
	WeekendRateCents int64    `json:"weekend_rate_cents"`
}

// Covers reports whether every unit id belongs to the package.
func (p *Package) Covers(unitIDs []string) bool {
	set := make(map[string]struct{}, len(p.UnitIDs))
	for _, id := range p.UnitIDs {
		set[id] = struct{}{}
	}
	for _, id := range unitIDs {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// CellKey addresses one lodging unit on one calendar date.
type CellKey struct {
	UnitID string
	Date   time.Time
}

// ID is the storage document id of the cell.
func (k CellKey) ID() string {
	return fmt.Sprintf("%s_%s", k.UnitID, k.Date.Format(DateLayout))
}

func (k CellKey) String() string {
	return k.ID()
}

// CellKeys expands unitIDs × stay nights, sorted by unit then date so that concurrent
// reservations touch cells in the same order.
func CellKeys(unitIDs []string, stay Stay) []CellKey {
	units := append([]string(nil), unitIDs...)
	sort.Strings(units)
	nights := stay.Nights()
	keys := make([]CellKey, 0, len(units)*len(nights))
	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		for _, d := range nights {
			keys = append(keys, CellKey{UnitID: u, Date: d})
		}
	}
	return keys
}

// AvailabilityCell is the occupancy state of one unit on one date. Version is the optimistic
// concurrency counter; a cell that was never written has Version 0 and is FREE.
type AvailabilityCell struct {
	UnitID    string     `json:"unit_id"`
	Date      time.Time  `json:"date"`
	Status    CellStatus `json:"status"`
	BookingID string     `json:"booking_id,omitempty"`
	Version   int64      `json:"version"`
	UpdatedOn time.Time  `json:"updated_on"`
}

// NewFreeCell returns the implicit state of a cell that has never been written.
func NewFreeCell(key CellKey) *AvailabilityCell {
	return &AvailabilityCell{UnitID: key.UnitID, Date: key.Date, Status: CellStatusFree}
}

func (c *AvailabilityCell) Key() CellKey {
	return CellKey{UnitID: c.UnitID, Date: c.Date}
}

// Validate checks the back-reference invariant.
func (c *AvailabilityCell) Validate() error {
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: unknown cell status %q", ErrValidation, c.Status)
	}
	if c.Status.Occupied() && c.BookingID == "" {
		return fmt.Errorf("%w: %s cell %s has no booking", ErrValidation, c.Status, c.Key())
	}
	if !c.Status.Occupied() && c.BookingID != "" {
		return fmt.Errorf("%w: %s cell %s carries booking %s", ErrValidation, c.Status, c.Key(), c.BookingID)
	}
	return nil
}
