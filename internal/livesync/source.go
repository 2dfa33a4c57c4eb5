// Package livesync keeps a local view of one row or a filtered collection in step
// with the realtime change feed.
package livesync

import (
	"context"
	"encoding/json"

	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// Query 컬렉션 조회 조건
type Query struct {
	Table   model.Table
	Column  string
	Value   string
	OrderBy string
	Desc    bool
}

// Subscription 해제 가능한 변경 구독
type Subscription interface {
	Unsubscribe() error
}

// StatusSubscription 전송 상태를 알려 주는 구독. 연결이 끊기면 에러로,
// 복구되어 다시 구독되면 nil로 fn을 호출한다. 등록 시점에 끊겨 있으면 바로 호출한다.
type StatusSubscription interface {
	Subscription
	OnStatus(fn func(err error))
}

// Source 초기 조회와 변경 구독을 제공하는 백엔드
type Source interface {
	// FetchOne 최대 한 행. 없으면 (nil, nil).
	FetchOne(ctx context.Context, table model.Table, column, value string) (json.RawMessage, error)
	FetchMany(ctx context.Context, q Query) ([]json.RawMessage, error)
	Subscribe(ctx context.Context, f realtime.Filter, handler func(realtime.ChangeEvent)) (Subscription, error)
}

// State 호출자에게 노출되는 상태
type State[D any] struct {
	Data    D
	Loading bool
	Err     error
}
