package upstream

import "fmt"

// TransferError reports a fetch that exhausted its retries. It carries the
// last concrete detail observed so failures are never reported bare.
type TransferError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transfer of %s failed after %d attempt(s) (last status %d): %v", e.URL, e.Attempts, e.Status, e.Err)
	}

	return fmt.Sprintf("transfer of %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
