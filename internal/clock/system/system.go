// Package system provides the wall-clock implementation of catalog.Clock.
package system

import (
	"time"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Clock reads the system time. All pipeline timestamps are UTC so run
// reports compare cleanly across hosts.
type Clock struct{}

var _ catalog.Clock = Clock{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
