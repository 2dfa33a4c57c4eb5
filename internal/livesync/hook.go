package livesync

import (
	"context"
	"errors"
	"sync"

	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// ErrClosed Close 이후 SetValue 호출
var ErrClosed = errors.New("livesync: hook closed")

type options struct {
	log      *logger.Logger
	listener func()
}

// Option 훅 옵션
type Option func(*options)

// WithLogger 경고/에러 로깅
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithListener 상태가 바뀔 때마다 호출 (Snapshot으로 읽는다)
func WithListener(fn func()) Option {
	return func(o *options) { o.listener = fn }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	return o
}

// core Row/Collection 공통 상태기계. gen은 대상이 바뀔 때마다 증가하며,
// 이전 세대의 조회 결과와 이벤트는 무시된다. seq는 받은 이벤트 수로,
// 조회 도중 이벤트가 도착했으면 그 조회 결과는 버린다.
type core[D any] struct {
	src    Source
	table  model.Table
	column string
	opts   options

	fetch   func(ctx context.Context, value string) (D, error)
	onEvent func(gen uint64, ev realtime.ChangeEvent)

	mu     sync.Mutex
	ctx    context.Context
	value  string
	gen    uint64
	seq    uint64
	link   error
	sub    Subscription
	state  State[D]
	closed bool
}

func (c *core[D]) snapshot() State[D] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *core[D]) currentValue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *core[D]) notify() {
	if c.opts.listener != nil {
		c.opts.listener()
	}
}

func (c *core[D]) release(sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		c.opts.log.Warn("unsubscribe failed", "table", c.table, "error", err)
	}
}

func (c *core[D]) setValue(ctx context.Context, value string) error {
	var zero D

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.sub
	c.sub = nil
	c.gen++
	gen := c.gen
	c.ctx = ctx
	c.value = value
	c.link = nil
	c.state = State[D]{Data: zero, Loading: value != ""}
	c.mu.Unlock()

	c.release(prev)
	c.notify()

	if value == "" {
		return nil
	}

	filter := realtime.Filter{Table: c.table, Column: c.column, Value: value}
	sub, err := c.src.Subscribe(ctx, filter, func(ev realtime.ChangeEvent) {
		c.onEvent(gen, ev)
	})
	if err != nil {
		c.opts.log.Error("subscribe failed", "filter", filter.String(), "error", err)
		c.mu.Lock()
		if c.gen == gen {
			c.state.Err = err
			c.state.Loading = false
		}
		c.mu.Unlock()
		c.notify()
		return err
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		c.release(sub)
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	if ss, ok := sub.(StatusSubscription); ok {
		ss.OnStatus(func(err error) { c.onStatus(gen, err) })
	}
	c.load(ctx, gen, value)
	return nil
}

// onStatus 전송이 끊기면 Err로 알리고, 복구되면 놓친 변경을 다시 조회한다
func (c *core[D]) onStatus(gen uint64, err error) {
	if err != nil {
		c.mu.Lock()
		if c.gen != gen || c.closed {
			c.mu.Unlock()
			return
		}
		c.link = err
		c.state.Err = err
		c.mu.Unlock()
		c.opts.log.Warn("change feed lost", "table", c.table, "column", c.column, "error", err)
		c.notify()
		return
	}

	c.mu.Lock()
	if c.gen == gen {
		c.link = nil
	}
	c.mu.Unlock()
	ctx, value, ok := c.observe(gen)
	if !ok {
		return
	}
	c.opts.log.Debug("change feed restored, refetching", "table", c.table, "column", c.column)
	c.load(ctx, gen, value)
}

// load 조회 후 같은 세대일 때만 상태 반영. loading은 모든 경로에서 내려간다.
func (c *core[D]) load(ctx context.Context, gen uint64, value string) {
	var (
		data D
		err  error
	)
	c.mu.Lock()
	start := c.seq
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.gen != gen || c.closed {
			c.mu.Unlock()
			return
		}
		if c.seq != start {
			// 이벤트가 더 최신이다. 컬렉션은 이벤트가 시작한 재조회가 반영한다.
			c.opts.log.Debug("fetch superseded by event", "table", c.table, "column", c.column)
			c.state.Loading = false
			c.mu.Unlock()
			c.notify()
			return
		}
		if err == nil {
			c.state.Data = data
		} else {
			c.opts.log.Error("fetch failed", "table", c.table, "column", c.column, "error", err)
		}
		c.state.Err = err
		if err == nil && c.link != nil {
			c.state.Err = c.link
		}
		c.state.Loading = false
		c.mu.Unlock()
		c.notify()
	}()
	data, err = c.fetch(ctx, value)
}

// observe 이벤트를 기록하고, 세대가 현재면 조회 컨텍스트를 돌려준다
func (c *core[D]) observe(gen uint64) (context.Context, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return nil, "", false
	}
	c.seq++
	return c.ctx, c.value, true
}

func (c *core[D]) update(gen uint64, fn func(*State[D])) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	fn(&c.state)
	c.mu.Unlock()
	c.notify()
}

func (c *core[D]) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	c.release(sub)
	return nil
}
