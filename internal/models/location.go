package models

import (
	"time"
)

// LocationRequest asks the agent to resolve the location once.
type LocationRequest struct {
	RequestID string `json:"request_id"`
}

// LocationReport is the outcome of one resolution as published over MQTT.
// Latitude and Longitude are nil when the location is unavailable.
type LocationReport struct {
	RequestID      string    `json:"request_id"`
	InstallationID string    `json:"installation_id"`
	Timestamp      time.Time `json:"timestamp"`
	Found          bool      `json:"found"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	Source         string    `json:"source,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}
