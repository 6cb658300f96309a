package ids

import "github.com/segmentio/ksuid"

// New returns a sortable, URL-safe task identifier.
func New() string {
	return ksuid.New().String()
}
