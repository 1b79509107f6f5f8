// Package session persists the local player session: profile fields
// (player id, name, avatar) that outlive any single room, plus the
// room-scoped fields (room code, timestamp) that support reconnection.
package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultTTL is how long a stored room session stays resumable.
const DefaultTTL = 24 * time.Hour

// Record is a valid, resumable session as returned by Read.
type Record struct {
	PlayerID     string
	PlayerName   string
	PlayerAvatar string
	RoomCode     string
	SavedAt      time.Time
}

// fileRecord is the on-disk layout: five scalar keys in one JSON document.
type fileRecord struct {
	PlayerID     string `json:"playerId,omitempty"`
	PlayerName   string `json:"playerName,omitempty"`
	PlayerAvatar string `json:"playerAvatar,omitempty"`
	RoomCode     string `json:"roomCode,omitempty"`
	SavedAt      int64  `json:"savedAt,omitempty"` // unix millis
}

// Store reads and writes the session file. It is the only component allowed
// to touch the durable record.
type Store struct {
	fs   afero.Fs
	path string
	ttl  time.Duration
	now  func() time.Time
}

func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path, ttl: DefaultTTL, now: time.Now}
}

// Save persists a full session for roomCode and refreshes the timestamp.
// An empty avatar leaves any previously saved avatar in place.
func (s *Store) Save(playerID, playerName, roomCode, avatar string) error {
	rec, err := s.load()
	if err != nil {
		return err
	}
	rec.PlayerID = playerID
	rec.PlayerName = playerName
	rec.RoomCode = roomCode
	rec.SavedAt = s.now().UnixMilli()
	if avatar != "" {
		rec.PlayerAvatar = avatar
	}
	return s.store(rec)
}

// Read returns the stored session, or ok=false when any required field is
// missing or the record has outlived its TTL. Expiry is checked here on
// every read, so stale records fall away without a cleanup pass.
func (s *Store) Read() (Record, bool) {
	rec, err := s.load()
	if err != nil {
		return Record{}, false
	}
	savedAt := time.UnixMilli(rec.SavedAt)
	if rec.PlayerID == "" || rec.PlayerName == "" || rec.RoomCode == "" {
		return Record{}, false
	}
	if rec.SavedAt == 0 || s.now().Sub(savedAt) >= s.ttl {
		return Record{}, false
	}
	return Record{
		PlayerID:     rec.PlayerID,
		PlayerName:   rec.PlayerName,
		PlayerAvatar: rec.PlayerAvatar,
		RoomCode:     rec.RoomCode,
		SavedAt:      savedAt,
	}, true
}

// ClearAll removes every key: a full identity reset.
func (s *Store) ClearAll() error {
	return s.store(fileRecord{})
}

// ClearRoomScope removes only the room code and timestamp. Profile fields
// survive, because leaving a room and resetting identity are different
// actions.
func (s *Store) ClearRoomScope() error {
	rec, err := s.load()
	if err != nil {
		return err
	}
	rec.RoomCode = ""
	rec.SavedAt = 0
	return s.store(rec)
}

// GetOrCreatePlayerID returns the stored player id, lazily generating and
// persisting one. Uniqueness matters here, secrecy does not.
func (s *Store) GetOrCreatePlayerID() (string, error) {
	rec, err := s.load()
	if err != nil {
		return "", err
	}
	if rec.PlayerID != "" {
		return rec.PlayerID, nil
	}
	rec.PlayerID = "player_" + uuid.NewString()
	if err := s.store(rec); err != nil {
		return "", err
	}
	return rec.PlayerID, nil
}

// SavePlayerName persists just the profile name.
func (s *Store) SavePlayerName(name string) error {
	rec, err := s.load()
	if err != nil {
		return err
	}
	rec.PlayerName = name
	return s.store(rec)
}

// SavePlayerAvatar persists just the profile avatar.
func (s *Store) SavePlayerAvatar(avatar string) error {
	rec, err := s.load()
	if err != nil {
		return err
	}
	rec.PlayerAvatar = avatar
	return s.store(rec)
}

// Profile returns the persisted profile fields regardless of room state or
// TTL. The name and avatar may be empty; the id is present only if one was
// ever generated.
func (s *Store) Profile() (playerID, playerName, playerAvatar string) {
	rec, err := s.load()
	if err != nil {
		return "", "", ""
	}
	return rec.PlayerID, rec.PlayerName, rec.PlayerAvatar
}

func (s *Store) load() (fileRecord, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		// A missing file reads as an empty record.
		return fileRecord{}, nil
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt file also reads as empty rather than wedging the
		// client; the next write repairs it.
		return fileRecord{}, nil
	}
	return rec, nil
}

func (s *Store) store(rec fileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
