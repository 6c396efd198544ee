// Package clock provides the production implementation of the clock port.
package clock

import "time"

// SystemClock reads the wall clock in UTC at microsecond precision, which is
// what Postgres timestamptz round-trips without loss.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
