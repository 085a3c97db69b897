package domain

import (
	"fmt"
	"time"
)

// Status is integer-coded in storage; the string form is the wire contract.
type Status int

const (
	StatusNew Status = iota
	StatusPaymentReceived
	StatusPaymentFailed
	StatusInProgress
	StatusCompleted
	StatusClosed
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusNew:             "new",
	StatusPaymentReceived: "payment_received",
	StatusPaymentFailed:   "payment_failed",
	StatusInProgress:      "in_progress",
	StatusCompleted:       "completed",
	StatusClosed:          "closed",
	StatusCanceled:        "canceled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal statuses accept no further transitions in the workflow's
// intended lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed || s == StatusCanceled
}

func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// StatusEntry is one append-only audit row. Entries are never updated or
// deleted; the latest one is the order's effective status.
type StatusEntry struct {
	ID        int64
	OrderID   int64
	Status    Status
	ChangedAt time.Time
	ChangedBy string
	Comment   string
}
