package models

import "time"

// SessionStatus is the lifecycle state of a chunked upload session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionReceiving SessionStatus = "receiving"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// UploadSession is the server-side state of a chunked upload in progress.
// The set of received chunk indices lives in its own table with a unique
// row per (session, index), so concurrent chunk arrivals never race on a
// shared array.
type UploadSession struct {
	ID      string
	OwnerID string

	FileName     string
	DeclaredSize int64
	ChunkCount   int
	ChunkSize    int64
	ParentID     *string

	Status    SessionStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the session is past its expiry at now.
func (s *UploadSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
