// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// VCSRequestTimeout bounds a single call to the VCS platform API.
	VCSRequestTimeout = 30 * time.Second

	// DeliveryTimeout bounds a single outbound message delivery.
	DeliveryTimeout = 10 * time.Second

	// ShutdownTimeout is the grace period for the HTTP server and running tasks on exit.
	ShutdownTimeout = 15 * time.Second

	// TaskCleanupInterval is how often finished background tasks are purged.
	TaskCleanupInterval = 1 * time.Hour
)
