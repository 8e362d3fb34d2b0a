package feed

import "fmt"

// DiscoveryError indicates the feed page never rendered a single post
// container within the startup timeout. It aborts the current pass.
type DiscoveryError struct {
	URL string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("no post containers found on %s", e.URL)
}
