// Package memory реализует хранилище прогресса в памяти процесса.
// Используется в unit-тестах прикладного слоя и для локального запуска
// без базы данных. Пишущие транзакции сериализуются: одновременно открыта
// не более одной, что эквивалентно блокировке строк на время транзакции.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

type stateKey struct {
	userID    string
	missionID string
}

type grantKey struct {
	userID  string
	badgeID string
}

// Store — потокобезопасное хранилище в памяти.
type Store struct {
	// sem — единственный слот пишущей транзакции.
	sem chan struct{}

	mu            sync.RWMutex
	progressions  map[string]*progression.UserProgression
	history       []progression.XPHistoryEntry // по возрастанию ID
	nextEntryID   int64
	missionStates map[stateKey]*mission.UserMissionState
	grants        map[grantKey]badge.Grant
	members       map[string]leaderboard.Member

	failCommits int
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		sem:           make(chan struct{}, 1),
		progressions:  make(map[string]*progression.UserProgression),
		nextEntryID:   1,
		missionStates: make(map[stateKey]*mission.UserMissionState),
		grants:        make(map[grantKey]badge.Grant),
		members:       make(map[string]leaderboard.Member),
	}
}

// FailNextCommits заставляет следующие n коммитов завершиться конфликтом.
// Нужен для проверки повторов транзакций.
func (s *Store) FailNextCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

// Begin открывает транзакцию, дожидаясь завершения текущей.
func (s *Store) Begin(ctx context.Context) (progression.UnitOfWork, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: begin: %w", ctx.Err())
	}
	return &unitOfWork{
		store:        s,
		progressions: make(map[string]*progression.UserProgression),
		states:       make(map[stateKey]*mission.UserMissionState),
		grants:       make(map[grantKey]badge.Grant),
	}, nil
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error { return nil }

// Close ничего не делает.
func (s *Store) Close() error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	store *Store
	done  bool

	progressions map[string]*progression.UserProgression
	history      []progression.XPHistoryEntry
	states       map[stateKey]*mission.UserMissionState
	grants       map[grantKey]badge.Grant
}

func (u *unitOfWork) Progressions() progression.Repository { return (*txProgressions)(u) }
func (u *unitOfWork) Missions() mission.StateRepository    { return (*txMissions)(u) }
func (u *unitOfWork) Badges() badge.GrantRepository        { return (*txBadges)(u) }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return fmt.Errorf("memory: commit: %w", shared.ErrInvalidState)
	}
	defer u.release()

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommits > 0 {
		s.failCommits--
		return shared.Conflict("memory.Commit", fmt.Errorf("injected conflict"))
	}

	for id, p := range u.progressions {
		s.progressions[id] = p.Clone()
	}
	for _, e := range u.history {
		s.history = append(s.history, e)
		if e.ID >= s.nextEntryID {
			s.nextEntryID = e.ID + 1
		}
	}
	for k, st := range u.states {
		s.missionStates[k] = st.Clone()
	}
	for k, g := range u.grants {
		s.grants[k] = g
	}
	return nil
}

func (u *unitOfWork) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.release()
	return nil
}

func (u *unitOfWork) release() {
	u.done = true
	<-u.store.sem
}

func (u *unitOfWork) check() error {
	if u.done {
		return fmt.Errorf("memory: transaction finished: %w", shared.ErrInvalidState)
	}
	return nil
}

// ── progression ──────────────────────────────────────────────────────────────

type txProgressions unitOfWork

func (r *txProgressions) GetOrCreateForUpdate(ctx context.Context, userID string, now time.Time) (*progression.UserProgression, error) {
	u := (*unitOfWork)(r)
	if err := u.check(); err != nil {
		return nil, err
	}
	if p, ok := u.progressions[userID]; ok {
		return p.Clone(), nil
	}

	u.store.mu.RLock()
	existing, ok := u.store.progressions[userID]
	u.store.mu.RUnlock()
	if ok {
		u.progressions[userID] = existing.Clone()
		return existing.Clone(), nil
	}

	p, err := progression.NewUserProgression(userID, now)
	if err != nil {
		return nil, err
	}
	u.progressions[userID] = p
	return p.Clone(), nil
}

func (r *txProgressions) Save(ctx context.Context, p *progression.UserProgression) error {
	u := (*unitOfWork)(r)
	if err := u.check(); err != nil {
		return err
	}
	if _, ok := u.progressions[p.UserID]; !ok {
		return fmt.Errorf("memory: save progression %s: %w", p.UserID, shared.ErrProgressionNotFound)
	}
	u.progressions[p.UserID] = p.Clone()
	return nil
}

func (r *txProgressions) AppendHistory(ctx context.Context, entry progression.XPHistoryEntry) (progression.XPHistoryEntry, error) {
	u := (*unitOfWork)(r)
	if err := u.check(); err != nil {
		return entry, err
	}
	u.store.mu.RLock()
	next := u.store.nextEntryID
	u.store.mu.RUnlock()

	entry.ID = next + int64(len(u.history))
	u.history = append(u.history, entry)
	return entry, nil
}

// ── missions ─────────────────────────────────────────────────────────────────

type txMissions unitOfWork

func (r *txMissions) GetOrCreateForUpdate(ctx context.Context, initial *mission.UserMissionState) (*mission.UserMissionState, error) {
	u := (*unitOfWork)(r)
	if err := u.check(); err != nil {
		return nil, err
	}
	key := stateKey{initial.UserID, initial.MissionID}
	if st, ok := u.states[key]; ok {
		return st.Clone(), nil
	}

	u.store.mu.RLock()
	existing, ok := u.store.missionStates[key]
	u.store.mu.RUnlock()
	if ok {
		u.states[key] = existing.Clone()
		return existing.Clone(), nil
	}

	u.states[key] = initial.Clone()
	return initial.Clone(), nil
}

func (r *txMissions) Save(ctx context.Context, st *mission.UserMissionState) error {
	u := (*unitOfWork)(r)
	if err := u.check(); err != nil {
		return err
	}
	key := stateKey{st.UserID, st.MissionID}
	if _, ok := u.states[key]; !ok {
		return fmt.Errorf("memory: save mission state %s/%s: %w", st.UserID, st.MissionID, shared.ErrMissionNotFound)
	}
	u.states[key] = st.Clone()
	return nil
}

// ── badges ───────────────────────────────────────────────────────────────────

type txBadges unitOfWork

func (r *txBadges) Insert(ctx context.Context, grant badge.Grant) (bool, error) {
	u := (*unitOfWork)(r)
	if err := u.check(); err != nil {
		return false, err
	}
	key := grantKey{grant.UserID, grant.BadgeID}
	if _, ok := u.grants[key]; ok {
		return false, nil
	}

	u.store.mu.RLock()
	_, exists := u.store.grants[key]
	u.store.mu.RUnlock()
	if exists {
		return false, nil
	}

	u.grants[key] = grant
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// Get implements progression.ReadRepository.
func (s *Store) Get(ctx context.Context, userID string) (*progression.UserProgression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progressions[userID]
	if !ok {
		return nil, shared.ErrProgressionNotFound
	}
	return p.Clone(), nil
}

// ListHistory implements progression.ReadRepository.
func (s *Store) ListHistory(ctx context.Context, userID string, offset, limit int) ([]progression.XPHistoryEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mine []progression.XPHistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].UserID == userID {
			mine = append(mine, s.history[i])
		}
	}
	total := len(mine)
	if offset >= total {
		return []progression.XPHistoryEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

// SumHistorySince implements progression.ReadRepository.
func (s *Store) SumHistorySince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := 0
	for _, e := range s.history {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			sum += e.Amount
		}
	}
	return sum, nil
}

// CountByReason implements progression.ReadRepository.
func (s *Store) CountByReason(ctx context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range s.history {
		if e.UserID == userID {
			counts[e.Reason.String()]++
		}
	}
	return counts, nil
}

// AuditLedger implements progression.ReadRepository.
func (s *Store) AuditLedger(ctx context.Context) ([]progression.LedgerDiscrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]int)
	for _, e := range s.history {
		sums[e.UserID] += e.Amount
	}
	users := make(map[string]struct{}, len(sums)+len(s.progressions))
	for id := range sums {
		users[id] = struct{}{}
	}
	for id := range s.progressions {
		users[id] = struct{}{}
	}

	var out []progression.LedgerDiscrepancy
	for id := range users {
		total := 0
		if p, ok := s.progressions[id]; ok {
			total = p.TotalXP.Int()
		}
		if total != sums[id] {
			out = append(out, progression.LedgerDiscrepancy{UserID: id, TotalXP: total, LedgerSum: sums[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ListStates implements mission.ReadRepository.
func (s *Store) ListStates(ctx context.Context, userID string) ([]mission.UserMissionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []mission.UserMissionState
	for k, st := range s.missionStates {
		if k.userID == userID {
			out = append(out, *st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MissionID < out[j].MissionID })
	return out, nil
}

// CountCompleted implements mission.ReadRepository.
func (s *Store) CountCompleted(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k, st := range s.missionStates {
		if k.userID == userID && st.IsCompleted {
			n++
		}
	}
	return n, nil
}

// CountCompletions implements mission.ReadRepository.
func (s *Store) CountCompletions(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k, st := range s.missionStates {
		if k.userID == userID {
			n += st.Completions
		}
	}
	return n, nil
}

// ListGrants implements badge.ReadRepository.
func (s *Store) ListGrants(ctx context.Context, userID string) ([]badge.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []badge.Grant
	for k, g := range s.grants {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

// CountGrants implements badge.ReadRepository.
func (s *Store) CountGrants(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.grants {
		if k.userID == userID {
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) eligibleStandings() []leaderboard.Standing {
	out := make([]leaderboard.Standing, 0, len(s.progressions))
	for id, p := range s.progressions {
		if m, ok := s.members[id]; ok && !m.Eligible() {
			continue
		}
		out = append(out, leaderboard.Standing{
			UserID:    id,
			TotalXP:   p.TotalXP.Int(),
			Level:     p.CurrentLevel,
			CreatedAt: p.CreatedAt,
		})
	}
	return out
}

// Page implements leaderboard.Repository.
func (s *Store) Page(ctx context.Context, offset, limit int) ([]leaderboard.Row, int, error) {
	s.mu.RLock()
	rows := leaderboard.Rank(s.eligibleStandings())
	s.mu.RUnlock()

	total := len(rows)
	if offset >= total {
		return []leaderboard.Row{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return rows[offset:end], total, nil
}

// CountGreater implements leaderboard.Repository.
func (s *Store) CountGreater(ctx context.Context, totalXP int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.eligibleStandings() {
		if st.TotalXP > totalXP {
			n++
		}
	}
	return n, nil
}

// UpsertMember implements leaderboard.Repository.
func (s *Store) UpsertMember(ctx context.Context, m leaderboard.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.UserID] = m
	return nil
}

// GetMember implements leaderboard.Repository.
func (s *Store) GetMember(ctx context.Context, userID string) (*leaderboard.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, shared.ErrNotFound)
	}
	return &m, nil
}
