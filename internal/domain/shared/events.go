package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are published only after the transaction that
// produced them has committed.
const (
	// Progression events
	EventXPAwarded EventType = "progression.xp_awarded"
	EventLevelUp   EventType = "progression.level_up"

	// Mission events
	EventMissionProgressed EventType = "mission.progressed"
	EventMissionCompleted  EventType = "mission.completed"
	EventMissionReset      EventType = "mission.reset"

	// Badge events
	EventBadgeEarned EventType = "badge.earned"

	// Leaderboard events
	EventMemberUpdated EventType = "leaderboard.member_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For every progression event this is the user ID.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted after an XP grant has been committed.
type XPAwardedEvent struct {
	BaseEvent
	EntryID int64  `json:"entry_id"`
	Amount  int    `json:"amount"`
	Reason  string `json:"reason"`
	TotalXP int    `json:"total_xp"`
	Bonus   bool   `json:"bonus"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"entry_id": e.EntryID,
		"amount":   e.Amount,
		"reason":   e.Reason,
		"total_xp": e.TotalXP,
		"bonus":    e.Bonus,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID string, entryID int64, amount int, reason string, totalXP int, bonus bool, at time.Time) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, userID, at),
		EntryID:   entryID,
		Amount:    amount,
		Reason:    reason,
		TotalXP:   totalXP,
		Bonus:     bonus,
	}
}

// LevelUpEvent is emitted when a user's level increases.
type LevelUpEvent struct {
	BaseEvent
	PreviousLevel int    `json:"previous_level"`
	NewLevel      int    `json:"new_level"`
	LevelName     string `json:"level_name"`
	TotalXP       int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_level": e.PreviousLevel,
		"new_level":      e.NewLevel,
		"level_name":     e.LevelName,
		"total_xp":       e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, previous, next int, levelName string, totalXP int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:     NewBaseEvent(EventLevelUp, userID, at),
		PreviousLevel: previous,
		NewLevel:      next,
		LevelName:     levelName,
		TotalXP:       totalXP,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Mission Events
// ═══════════════════════════════════════════════════════════════════════════

// MissionProgressedEvent is emitted when progress on a mission changed.
type MissionProgressedEvent struct {
	BaseEvent
	MissionID        string `json:"mission_id"`
	Progress         int    `json:"progress"`
	RequirementCount int    `json:"requirement_count"`
}

// Payload implements Event interface.
func (e MissionProgressedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mission_id":        e.MissionID,
		"progress":          e.Progress,
		"requirement_count": e.RequirementCount,
	}
}

// NewMissionProgressedEvent creates a new MissionProgressedEvent.
func NewMissionProgressedEvent(userID, missionID string, progress, requirement int, at time.Time) MissionProgressedEvent {
	return MissionProgressedEvent{
		BaseEvent:        NewBaseEvent(EventMissionProgressed, userID, at),
		MissionID:        missionID,
		Progress:         progress,
		RequirementCount: requirement,
	}
}

// MissionCompletedEvent is emitted when a mission reaches its requirement.
type MissionCompletedEvent struct {
	BaseEvent
	MissionID   string `json:"mission_id"`
	MissionName string `json:"mission_name"`
	MissionType string `json:"mission_type"`
	XPReward    int    `json:"xp_reward"`
	BadgeReward string `json:"badge_reward,omitempty"`
}

// Payload implements Event interface.
func (e MissionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mission_id":   e.MissionID,
		"mission_name": e.MissionName,
		"mission_type": e.MissionType,
		"xp_reward":    e.XPReward,
		"badge_reward": e.BadgeReward,
	}
}

// NewMissionCompletedEvent creates a new MissionCompletedEvent.
func NewMissionCompletedEvent(userID, missionID, name, missionType string, xpReward int, badgeReward string, at time.Time) MissionCompletedEvent {
	return MissionCompletedEvent{
		BaseEvent:   NewBaseEvent(EventMissionCompleted, userID, at),
		MissionID:   missionID,
		MissionName: name,
		MissionType: missionType,
		XPReward:    xpReward,
		BadgeReward: badgeReward,
	}
}

// MissionResetEvent is emitted when a periodic mission re-arms.
type MissionResetEvent struct {
	BaseEvent
	MissionID string    `json:"mission_id"`
	ResetAt   time.Time `json:"reset_at"`
}

// Payload implements Event interface.
func (e MissionResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mission_id": e.MissionID,
		"reset_at":   e.ResetAt,
	}
}

// NewMissionResetEvent creates a new MissionResetEvent.
func NewMissionResetEvent(userID, missionID string, nextReset time.Time, at time.Time) MissionResetEvent {
	return MissionResetEvent{
		BaseEvent: NewBaseEvent(EventMissionReset, userID, at),
		MissionID: missionID,
		ResetAt:   nextReset,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge & Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted only when a grant row was actually inserted.
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID   string `json:"badge_id"`
	BadgeName string `json:"badge_name"`
	Source    string `json:"source"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":   e.BadgeID,
		"badge_name": e.BadgeName,
		"source":     e.Source,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, badgeID, badgeName, source string, at time.Time) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent: NewBaseEvent(EventBadgeEarned, userID, at),
		BadgeID:   badgeID,
		BadgeName: badgeName,
		Source:    source,
	}
}

// MemberUpdatedEvent is emitted when leaderboard eligibility of a user changed.
type MemberUpdatedEvent struct {
	BaseEvent
	Role      string `json:"role"`
	Suspended bool   `json:"suspended"`
}

// Payload implements Event interface.
func (e MemberUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"role":      e.Role,
		"suspended": e.Suspended,
	}
}

// NewMemberUpdatedEvent creates a new MemberUpdatedEvent.
func NewMemberUpdatedEvent(userID, role string, suspended bool, at time.Time) MemberUpdatedEvent {
	return MemberUpdatedEvent{
		BaseEvent: NewBaseEvent(EventMemberUpdated, userID, at),
		Role:      role,
		Suspended: suspended,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
