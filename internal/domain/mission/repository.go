package mission

import "context"

// StateRepository — операции над состояниями миссий внутри транзакции.
type StateRepository interface {
	// GetOrCreateForUpdate возвращает состояние (UserID, MissionID) из initial,
	// блокируя строку до конца транзакции. Если строки нет, вставляет initial
	// (insert-if-absent) и возвращает сохранённое значение.
	GetOrCreateForUpdate(ctx context.Context, initial *UserMissionState) (*UserMissionState, error)

	// Save сохраняет изменённое состояние.
	Save(ctx context.Context, state *UserMissionState) error
}

// ReadRepository — запросы чтения состояний вне транзакций.
type ReadRepository interface {
	// ListStates возвращает все состояния миссий пользователя.
	ListStates(ctx context.Context, userID string) ([]UserMissionState, error)

	// CountCompleted возвращает число миссий пользователя с IsCompleted=true.
	CountCompleted(ctx context.Context, userID string) (int, error)

	// CountCompletions возвращает сумму Completions по всем миссиям
	// пользователя, включая уже сброшенные выполнения.
	CountCompletions(ctx context.Context, userID string) (int, error)
}
