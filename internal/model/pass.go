package model

import "time"

// PassResult is the response of a successful monitoring pass.
type PassResult struct {
	Message string    `json:"message"`
	Data    []Product `json:"data"`
	// Updated counts the products persisted with a new price point.
	Updated int `json:"-"`
}

// PassFailure is the response of a pass that could not start.
type PassFailure struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// PassStatus records the last pass seen by the scheduler.
type PassStatus struct {
	PassID    string        `json:"pass_id"`
	StartedAt time.Time     `json:"started_at"`
	Status    string        `json:"status"` // never, running, success, failed
	Error     string        `json:"error,omitempty"`
	Products  int           `json:"products"`
	Updated   int           `json:"updated"`
	Duration  time.Duration `json:"duration"`
}
