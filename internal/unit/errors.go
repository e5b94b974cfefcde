package unit

import "fmt"

// PublishError reports that the packaging store rejected a unit. Fatal for
// the (logical version, platform) being published, but sibling platforms in
// a batch proceed independently.
type PublishError struct {
	LogicalVersion string
	Platform       string
	Err            error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish cache unit for %s/%s: %v", e.LogicalVersion, e.Platform, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
