package leaderboard

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot — состояние рейтинга на момент времени. Используется для архива
// недельных итогов; на запись прогресса не влияет.
type Snapshot struct {
	ID         string    `json:"id"`
	TakenAt    time.Time `json:"taken_at"`
	Period     string    `json:"period"`
	TotalUsers int       `json:"total_users"`
	TotalXP    int       `json:"total_xp"`
	Rows       []Row     `json:"rows"`
}

// NewSnapshot собирает снапшот из строк рейтинга.
func NewSnapshot(id string, takenAt time.Time, rows []Row) *Snapshot {
	total := 0
	for _, r := range rows {
		total += r.TotalXP
	}
	year, week := takenAt.ISOWeek()
	return &Snapshot{
		ID:         id,
		TakenAt:    takenAt.UTC(),
		Period:     fmt.Sprintf("%d-W%02d", year, week),
		TotalUsers: len(rows),
		TotalXP:    total,
		Rows:       rows,
	}
}

// Top возвращает первые n строк.
func (s *Snapshot) Top(n int) []Row {
	if n <= 0 || n >= len(s.Rows) {
		return s.Rows
	}
	return s.Rows[:n]
}

// AverageXP возвращает средний XP участников.
func (s *Snapshot) AverageXP() int {
	if s.TotalUsers == 0 {
		return 0
	}
	return s.TotalXP / s.TotalUsers
}
