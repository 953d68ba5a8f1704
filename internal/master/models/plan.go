package models

import "time"

// Plan is a billing plan; Cycle is in days.
type Plan struct {
	ID        string
	Name      string
	Price     float64
	Cycle     int
	CreatedOn time.Time
	UpdatedOn time.Time
}
