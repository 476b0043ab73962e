package site

import "fmt"

// Rect is an axis-aligned rectangle in percentage units.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether p lies inside r. Edges are inclusive.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.X && p.X <= r.X+r.W &&
		p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Zone is an immutable named region.
type Zone struct {
	ID ZoneID `json:"id"`
	Rect
}

// Full frame used for the Safe zone overlay.
var fullFrame = Rect{X: 0, Y: 0, W: 100, H: 100}

// Layout is an ordered set of zones. Earlier zones take priority when
// rectangles overlap; positions matching none of them are Safe.
type Layout struct {
	zones []Zone
}

// DefaultLayout returns the site layout: the loading dock in the upper
// right and the excavation pit in the lower left.
func DefaultLayout() *Layout {
	return &Layout{zones: []Zone{
		{ID: ZoneLoadingDock, Rect: Rect{X: 60, Y: 10, W: 35, H: 40}},
		{ID: ZoneExcavationPit, Rect: Rect{X: 5, Y: 50, W: 40, H: 40}},
	}}
}

// NewLayout builds a layout from zones in priority order.
func NewLayout(zones ...Zone) (*Layout, error) {
	seen := make(map[ZoneID]bool, len(zones))
	for _, z := range zones {
		if z.ID == "" || z.ID == ZoneSafe {
			return nil, fmt.Errorf("site: zone id %q is reserved or empty", z.ID)
		}
		if z.W <= 0 || z.H <= 0 {
			return nil, fmt.Errorf("site: zone %q has non-positive size", z.ID)
		}
		if seen[z.ID] {
			return nil, fmt.Errorf("site: duplicate zone %q", z.ID)
		}
		seen[z.ID] = true
	}
	return &Layout{zones: append([]Zone(nil), zones...)}, nil
}

// Classify maps a position to the first zone containing it, or Safe.
// Callers clamp out-of-range positions; Classify does not validate.
func (l *Layout) Classify(p Position) ZoneID {
	for _, z := range l.zones {
		if z.Contains(p) {
			return z.ID
		}
	}
	return ZoneSafe
}

// Zones returns the overlay zones: Safe first as the full-frame background,
// then the priority zones in order.
func (l *Layout) Zones() []Zone {
	out := make([]Zone, 0, len(l.zones)+1)
	out = append(out, Zone{ID: ZoneSafe, Rect: fullFrame})
	return append(out, l.zones...)
}

// Has reports whether id is Safe or one of the layout's zones.
func (l *Layout) Has(id ZoneID) bool {
	if id == ZoneSafe {
		return true
	}
	for _, z := range l.zones {
		if z.ID == id {
			return true
		}
	}
	return false
}
