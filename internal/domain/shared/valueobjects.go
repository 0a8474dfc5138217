package shared

import (
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// UserID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a platform user. Identity is supplied by the surrounding
// platform, which has already authenticated the caller.
type UserID string

// MaxUserIDLength bounds identifiers stored in the ledger.
const MaxUserIDLength = 128

// IsValid checks that the ID is non-empty and fits the storage column.
func (u UserID) IsValid() bool {
	n := utf8.RuneCountInString(string(u))
	return n > 0 && n <= MaxUserIDLength
}

// String returns the underlying string value.
func (u UserID) String() string {
	return string(u)
}

// NewUserID validates a raw identifier. IDs are stored as given, so " u1"
// is rejected instead of being trimmed into a different key.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyUserID
	}
	if trimmed != raw {
		return "", ErrPaddedUserID
	}
	id := UserID(raw)
	if !id.IsValid() {
		return "", ErrEmptyUserID
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a position in the leaderboard (1 = first). Zero means unranked.
type Rank int

// IsRanked reports whether the rank denotes a real position.
func (r Rank) IsRanked() bool {
	return r > 0
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsTop reports whether the rank is within the first n positions.
func (r Rank) IsTop(n int) bool {
	return r.IsRanked() && int(r) <= n
}

// RankFromGreater computes a competition rank from the number of users
// holding strictly more XP.
func RankFromGreater(greater int) Rank {
	if greater < 0 {
		greater = 0
	}
	return Rank(greater + 1)
}
