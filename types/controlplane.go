package types

import (
	"time"
)

type ServiceState string

const (
	ServiceStateRunning  ServiceState = "RUNNING"
	ServiceStateDegraded ServiceState = "DEGRADED"
	ServiceStateStopped  ServiceState = "STOPPED"
	ServiceStateUnknown  ServiceState = "UNKNOWN"
)

// ServiceStatus is the control plane's view of one deployed service.
type ServiceStatus struct {
	Service         string       `json:"service"`
	State           ServiceState `json:"state"`
	ActiveReference string       `json:"activeReference"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Reference is one deployable revision of a service as known to the
// control plane, newest first in listings.
type Reference struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Active    bool      `json:"active"`
}
