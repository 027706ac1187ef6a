package domain

import "fmt"

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Key returns a stable identity for the coordinate, rounded to six
// decimal places (about 10cm of precision). Used for location
// deduplication and travel-cache keys.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}
