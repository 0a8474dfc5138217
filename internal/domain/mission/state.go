package mission

import (
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER MISSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// UserMissionState — прогресс пользователя по одной миссии.
// Пара (UserID, MissionID) уникальна.
//
// Инварианты:
//   - 0 ≤ Progress ≤ RequirementCount;
//   - после IsCompleted=true прогресс заморожен до сброса;
//   - ResetAt == nil только у достижений, которые никогда не сбрасываются;
//   - Completions не уменьшается: сброс его не трогает.
type UserMissionState struct {
	UserID      string
	MissionID   string
	Progress    int
	IsCompleted bool
	CompletedAt *time.Time
	ResetAt     *time.Time
	UpdatedAt   time.Time

	// Completions — сколько раз миссия выполнена за всё время.
	Completions int
}

// NewUserMissionState создаёт начальное состояние: прогресс 0, ResetAt по типу миссии.
func NewUserMissionState(userID string, def Definition, now time.Time) *UserMissionState {
	return &UserMissionState{
		UserID:    userID,
		MissionID: def.ID,
		ResetAt:   def.Type.NextReset(now),
		UpdatedAt: now.UTC(),
	}
}

// ResetDue сообщает, наступило ли время сброса.
func (s *UserMissionState) ResetDue(now time.Time) bool {
	return s.ResetAt != nil && !now.Before(*s.ResetAt)
}

// AdvanceResult — что произошло с состоянием за один проход.
type AdvanceResult struct {
	// Reset — состояние было сброшено в этом проходе.
	Reset bool

	// Skipped — миссия уже выполнена и не сбрасывалась.
	Skipped bool

	// Applied — сколько единиц фактически добавлено (с учётом ограничения сверху).
	Applied int

	// Completed — миссия выполнена в этом проходе.
	Completed bool
}

// Changed сообщает, нужно ли сохранять состояние.
func (r AdvanceResult) Changed() bool {
	return r.Reset || r.Applied > 0 || r.Completed
}

// Advance применяет amount к состоянию в строгом порядке:
//  1. сброс, если ResetAt наступил (новый ResetAt = now + период типа);
//  2. пропуск, если миссия выполнена и сброса не было;
//  3. прибавление amount, ограниченное RequirementCount;
//  4. отметка выполнения при достижении RequirementCount.
//
// Вызывающий обязан держать блокировку строки состояния на время Advance и
// сохранения, чтобы сброс и прибавление были атомарны.
func (s *UserMissionState) Advance(def Definition, amount int, now time.Time) (AdvanceResult, error) {
	if s.MissionID != def.ID {
		return AdvanceResult{}, shared.ErrMissionStateMismatched
	}
	if amount <= 0 {
		return AdvanceResult{}, shared.ErrNonPositiveProgress
	}

	now = now.UTC()
	var res AdvanceResult

	if s.ResetDue(now) {
		s.Progress = 0
		s.IsCompleted = false
		s.CompletedAt = nil
		s.ResetAt = def.Type.NextReset(now)
		res.Reset = true
	}

	if s.IsCompleted {
		res.Skipped = true
		return res, nil
	}

	before := s.Progress
	s.Progress += amount
	if s.Progress > def.RequirementCount {
		s.Progress = def.RequirementCount
	}
	res.Applied = s.Progress - before

	if s.Progress >= def.RequirementCount {
		s.IsCompleted = true
		completedAt := now
		s.CompletedAt = &completedAt
		s.Completions++
		res.Completed = true
	}

	s.UpdatedAt = now
	return res, nil
}

// Clone возвращает глубокую копию состояния.
func (s *UserMissionState) Clone() *UserMissionState {
	if s == nil {
		return nil
	}
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.ResetAt != nil {
		t := *s.ResetAt
		c.ResetAt = &t
	}
	return &c
}
