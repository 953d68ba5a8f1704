package models

import "time"

// ApplicationState tracks whether the create workflow for an application
// finished.
type ApplicationState string

const (
	// StatePending rows hold a (shard, port) reservation while provisioning
	// is in flight.
	StatePending     ApplicationState = "pending"
	StateProvisioned ApplicationState = "provisioned"
)

// Application is a hosted Node.js app bound to one shard and port.
type Application struct {
	ID           string
	UserID       string
	Name         string
	Port         int
	CustomDomain string
	CreatedOn    time.Time
	Shard        string
	Plan         string
	Enabled      bool
	State        ApplicationState
}

// ApplicationOwner is an application joined with the username of its owner,
// which every proxy and shard operation is keyed by.
type ApplicationOwner struct {
	Application
	Username string
}
