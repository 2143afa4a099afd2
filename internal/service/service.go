package service

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a request, actor or reward does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update loses a race: the
	// row's status moved between read and write. The caller's view is stale,
	// not wrong, so this maps to a retry-able conflict rather than a crash.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientBalance is returned when a redemption exceeds the
	// actor's points balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// EventBus is the slice of the pub/sub bus the services publish through.
type EventBus interface {
	PublishTable(table string, event map[string]interface{}) error
	PublishRequest(requestID string, event map[string]interface{}) error
	PublishActor(actorID string, event map[string]interface{}) error
	PublishRole(role string, event map[string]interface{}) error
}

// JobClient schedules background reminders for requests that linger in their
// initial state. Reminders notify; they never transition.
type JobClient interface {
	ScheduleStaleReminder(lifecycle, requestID string, after time.Duration) error
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func timePtrToString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}
