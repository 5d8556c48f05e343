package cache

import (
	"path/filepath"
	"time"

	"github.com/sriramvarun3/Memori/granola"
)

// MeetingsSnapshot is the cached meeting list.  It is refreshed only on
// explicit user action or cache miss, never in the background.
type MeetingsSnapshot struct {
	Meetings []granola.MeetingRecord `json:"meetings"`
	CachedAt time.Time               `json:"cachedAt"`
}

// Meetings returns the cached snapshot.  ErrNotCached means no snapshot has
// been saved yet.
func (m *Manager) Meetings() (MeetingsSnapshot, error) {
	var snap MeetingsSnapshot
	if err := loadJSON(m.meetingsPath(), &snap); err != nil {
		return MeetingsSnapshot{}, err
	}
	return snap, nil
}

// SaveMeetings overwrites the snapshot with the given list, stamping it
// with the current time.
func (m *Manager) SaveMeetings(mm []granola.MeetingRecord) error {
	return storeJSON(m.meetingsPath(), MeetingsSnapshot{
		Meetings: mm,
		CachedAt: m.now(),
	})
}

func (m *Manager) meetingsPath() string {
	return filepath.Join(m.dir, meetingsFile)
}
