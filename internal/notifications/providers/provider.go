// Package providers implements outbound message transports.
package providers

import (
	"context"
)

// Message is one outbound notification.
type Message struct {
	Title string
	Body  string
	// Channel is the configured channel name the message is routed to.
	Channel string
}

// Provider delivers messages over one transport.
type Provider interface {
	Name() string
	Available() bool
	Send(ctx context.Context, message Message) error
}
