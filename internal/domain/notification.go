package domain

import "time"

// NotificationKind identifies which throttle decision produced a message.
type NotificationKind string

const (
	KindAlert  NotificationKind = "alert"
	KindReport NotificationKind = "report"
	KindHourly NotificationKind = "hourly_report"
)

// Notification is a rendered message handed to the transport. OnDelivered,
// when set, runs after every sender accepted the message.
type Notification struct {
	ID          string
	Kind        NotificationKind
	Symbol      string
	Title       string
	Text        string
	CreatedAt   time.Time
	OnDelivered func()
}
