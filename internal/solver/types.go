// Package solver is the client for the external vehicle-routing
// service. It owns the request/response wire contract and classifies
// failures for the orchestrator.
package solver

import "github.com/fieldworks/dispatchd/internal/dispatch/domain"

// Response status values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Location is one indexed coordinate in the request's location set.
type Location struct {
	ID     string            `json:"id"`
	Index  int               `json:"index"`
	Coords domain.Coordinate `json:"coords"`
}

// Technician is one routable worker with its daily window.
type Technician struct {
	ID                   int64  `json:"id"`
	StartLocationIndex   int    `json:"startLocationIndex"`
	EndLocationIndex     int    `json:"endLocationIndex"`
	EarliestStartTimeISO string `json:"earliestStartTimeISO"`
	LatestEndTimeISO     string `json:"latestEndTimeISO"`
}

// Item is one schedulable unit. IDs follow job_<int> or bundle_<orderId>.
// An empty eligible list means the solver may drop the item.
type Item struct {
	ID                    string  `json:"id"`
	LocationIndex         int     `json:"locationIndex"`
	DurationSeconds       int64   `json:"durationSeconds"`
	Priority              int     `json:"priority"`
	EligibleTechnicianIDs []int64 `json:"eligibleTechnicianIds"`
}

// FixedConstraint pins an item to an exact start time.
type FixedConstraint struct {
	ItemID       string `json:"itemId"`
	FixedTimeISO string `json:"fixedTimeISO"`
}

// Request is the solve payload.
type Request struct {
	Locations        []Location                  `json:"locations"`
	Technicians      []Technician                `json:"technicians"`
	Items            []Item                      `json:"items"`
	FixedConstraints []FixedConstraint           `json:"fixedConstraints"`
	TravelTimeMatrix map[string]map[string]int64 `json:"travelTimeMatrix"`
}

// Stop is one placed item within a route.
type Stop struct {
	ItemID         string `json:"itemId"`
	ArrivalTimeISO string `json:"arrivalTimeISO"`
	StartTimeISO   string `json:"startTimeISO"`
	EndTimeISO     string `json:"endTimeISO"`
}

// Route is one technician's ordered stops.
type Route struct {
	TechnicianID int64  `json:"technicianId"`
	Stops        []Stop `json:"stops"`
}

// Response is the solve result. Partial status is the normal outcome of
// an overflow pass; unassigned ids come back verbatim.
type Response struct {
	Status            string   `json:"status"`
	Message           string   `json:"message,omitempty"`
	Routes            []Route  `json:"routes"`
	UnassignedItemIDs []string `json:"unassignedItemIds,omitempty"`
}
