package entity

// SpoolCleanupEvent asks the cleanup consumer to remove spool files that
// belonged to a superseded upload or an evicted session.
type SpoolCleanupEvent struct {
	EventID   string
	SessionID string
	Paths     []string
}
