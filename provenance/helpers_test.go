package provenance

import "time"

// fixedTime returns a stable, non-"now" timestamp for constructing
// Process resources in tests, avoiding any reliance on wall-clock
// uniqueness across test runs.
func fixedTime() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}
