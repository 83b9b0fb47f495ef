package session

import (
	"time"

	"github.com/ewanfisher/voxmail/backend/internal/model/mail"
)

// ReadEntry keeps the full content of a message the user read, tagged
// with the list generation it was read under so stale index references
// can be detected after the list changes.
type ReadEntry struct {
	Content    mail.Content `json:"content"`
	Generation int          `json:"generation"`
}

// Session captures the per-user conversational state spanning turns.
// All mutation happens under the store's per-user lock.
type Session struct {
	UserID         string            `json:"userId"`
	Accounts       []string          `json:"accounts"`
	EmailList      []mail.Summary    `json:"emailList"`
	ReadCache      map[int]ReadEntry `json:"readCache"`
	LastReadIndex  int               `json:"lastReadIndex"` // 0 means none
	PendingDraft   *mail.Draft       `json:"pendingDraft,omitempty"`
	Generation     int               `json:"generation"`
	LastVariant    map[string]int    `json:"lastVariant"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
}

// New returns an empty session for the given user.
func New(userID string, accounts []string) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:         userID,
		Accounts:       append([]string(nil), accounts...),
		ReadCache:      make(map[int]ReadEntry),
		LastVariant:    make(map[string]int),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Touch records activity for idle-expiry accounting.
func (s *Session) Touch() {
	s.LastActivityAt = time.Now().UTC()
}

// ReplaceList installs a fresh result set. Indices restart at 1, the
// generation advances, and the last-read pointer is cleared; the read
// cache is kept (entries stay addressable under their original index).
func (s *Session) ReplaceList(items []mail.Summary) {
	s.Generation++
	s.EmailList = make([]mail.Summary, len(items))
	for i, item := range items {
		item.Index = i + 1
		s.EmailList[i] = item
	}
	s.LastReadIndex = 0
}

// SummaryAt returns the entry for a 1-based index in the current list.
func (s *Session) SummaryAt(index int) (mail.Summary, bool) {
	if index < 1 || index > len(s.EmailList) {
		return mail.Summary{}, false
	}
	return s.EmailList[index-1], true
}

// RememberRead caches full content under its index and moves the
// last-read pointer.
func (s *Session) RememberRead(index int, content mail.Content) {
	s.ReadCache[index] = ReadEntry{Content: content, Generation: s.Generation}
	s.LastReadIndex = index
}

// ReadAt returns cached content for an index, if the user read it.
func (s *Session) ReadAt(index int) (ReadEntry, bool) {
	entry, ok := s.ReadCache[index]
	return entry, ok
}

// Reset clears everything back to a fresh session for the same user.
func (s *Session) Reset() {
	s.EmailList = nil
	s.ReadCache = make(map[int]ReadEntry)
	s.LastReadIndex = 0
	s.PendingDraft = nil
	s.Generation = 0
	s.LastVariant = make(map[string]int)
	s.Touch()
}

// IdleSince reports how long the session has been inactive.
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}
