// Package clock is the time source port; services never call time.Now.
package clock

import "time"

type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time
}
