package server

import (
	"context"
	"sync"
	"time"

	"spacearena/store"
)

// Auth 认证协作方；失败以 Result 表示，不抛出
type Auth interface {
	Register(ctx context.Context, username, password, address string) store.Result
	Login(ctx context.Context, username, password string) store.Result
	Lookup(ctx context.Context, username string) store.Result
}

// Persistence 玩家存档协作方
type Persistence interface {
	LoadPlayer(ctx context.Context, accountID uint) (*store.PlayerRecord, error)
	SavePlayer(ctx context.Context, rec *store.PlayerRecord) error
}

// Writer 异步写存档：Save 永不阻塞 Tick，队列满时丢弃并计数
type Writer struct {
	db      Persistence
	queue   chan store.PlayerRecord
	timeout time.Duration
	metrics *Metrics

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewWriter(db Persistence, size int, metrics *Metrics) *Writer {
	if size <= 0 {
		size = 256
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Writer{
		db:      db,
		queue:   make(chan store.PlayerRecord, size),
		timeout: 5 * time.Second,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Save 入队（非阻塞）
func (w *Writer) Save(rec store.PlayerRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.IncSaveDropped()
		Log.Warnf("writer closed, dropping record: account=%d user=%s", rec.AccountID, rec.Username)
		return
	}
	select {
	case w.queue <- rec:
		w.metrics.IncSaveQueued()
	default:
		w.metrics.IncSaveDropped()
		Log.Warnf("save queue full, dropping record: account=%d user=%s", rec.AccountID, rec.Username)
	}
}

// Start 启动写协程（幂等）
func (w *Writer) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

func (w *Writer) run() {
	defer close(w.done)
	for rec := range w.queue {
		w.write(rec)
	}
}

func (w *Writer) write(rec store.PlayerRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.db.SavePlayer(ctx, &rec); err != nil {
		w.metrics.IncSaveFailure()
		Log.Errorf("save player failed: account=%d user=%s err=%v", rec.AccountID, rec.Username, err)
	}
}

// Close 停止接收并写完队列中剩余的存档；之后的 Save 被丢弃
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
		w.Start()
		<-w.done
	})
}
