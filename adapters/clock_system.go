package adapters

import "time"

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) UnixNano() int64 {
	return time.Now().UnixNano()
}
