package constants

// RunStatus is the canonical status for rows in extraction_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusQueued    RunStatus = "QUEUED"    // accepted by the daemon, not started
	RunStatusRunning   RunStatus = "RUNNING"   // pages in flight
	RunStatusSucceeded RunStatus = "SUCCEEDED" // every selected page yielded data
	RunStatusPartial   RunStatus = "PARTIAL"   // some pages failed or were empty
	RunStatusFailed    RunStatus = "FAILED"    // no usable page, or caller misuse
	RunStatusCancelled RunStatus = "CANCELLED" // run-level cancellation
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusPartial, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// PageStatus is the canonical status for rows in extraction_page.
type PageStatus string

const (
	PageStatusPending   PageStatus = "PENDING"
	PageStatusOK        PageStatus = "OK"
	PageStatusEmpty     PageStatus = "EMPTY"  // no evidence or nothing usable extracted
	PageStatusFailed    PageStatus = "FAILED" // detection or extraction failed terminally
	PageStatusCancelled PageStatus = "CANCELLED"
)
