package netsync

import (
	"math/rand"
	"time"
)

// JitterSource abstracts the source of the random delay added to requeued
// fallback announcements, so tests can make it deterministic.
type JitterSource interface {
	Int63n(n int64) int64
}

// defaultJitterSource returns a new random source, seeded from the current
// time, for a Scheduler that is not given one explicitly.
func defaultJitterSource() JitterSource {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
