package chrono

import (
	"sync/atomic"
	"time"
)

// DefaultZone is the zone the portal renders its dates in.
const DefaultZone = "Australia/Sydney"

var location atomic.Pointer[time.Location]

func init() {
	loc, err := time.LoadLocation(DefaultZone)
	if err != nil {
		panic(err)
	}
	location.Store(loc)
}

// Location returns the process-wide location timestamps are normalized into.
func Location() *time.Location {
	return location.Load()
}

// SetDefault replaces the process-wide location with the given IANA zone.
func SetDefault(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	location.Store(loc)
	return nil
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in the process-wide location.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

func (StandardTime) Now() time.Time {
	return time.Now().In(Location())
}
