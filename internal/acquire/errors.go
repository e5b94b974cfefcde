package acquire

import "fmt"

// IntegrityError reports a payload below its minimum plausible size. Stale
// upstream paths sometimes serve a small HTML error page with a 200 status;
// such payloads are rejected and never enter the reuse cache.
type IntegrityError struct {
	Key     Key
	URL     string
	Size    int64
	MinSize int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("artifact %s from %s is %d bytes, below the %d byte minimum",
		e.Key, e.URL, e.Size, e.MinSize)
}
