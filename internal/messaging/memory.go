package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull 内存队列已满
var ErrQueueFull = errors.New("内存队列已满")

// ErrBrokerClosed Broker 已关闭
var ErrBrokerClosed = errors.New("broker 已关闭")

// MemoryBroker 进程内 Broker：每个路由键一个缓冲队列，订阅前发布的消息会保留。
// 消息同样经过 Encode/Decode，用于本地联调与测试。
type MemoryBroker struct {
	mu       sync.Mutex
	queues   map[RoutingKey]chan []byte
	buffer   int
	closed   bool
	pending  atomic.Int64
	received atomic.Int64
}

// NewMemoryBroker 创建进程内 Broker，buffer 为每个队列的容量
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{queues: make(map[RoutingKey]chan []byte), buffer: buffer}
}

func (b *MemoryBroker) queue(key RoutingKey) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[key]
	if !ok {
		q = make(chan []byte, b.buffer)
		b.queues[key] = q
	}
	return q
}

// Publish 入队，不等待消费
func (b *MemoryBroker) Publish(_ context.Context, msg Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBrokerClosed
	}

	key, body, err := Encode(msg)
	if err != nil {
		return err
	}
	b.pending.Add(1)
	select {
	case b.queue(key) <- body:
		b.received.Add(1)
		return nil
	default:
		b.pending.Add(-1)
		return ErrQueueFull
	}
}

// Subscribe 消费直到 ctx 取消；无法解析或处理失败的消息直接丢弃（没有死信队列），
// 可重试的失败重新放回队尾，队列已满时丢弃
func (b *MemoryBroker) Subscribe(ctx context.Context, keys []RoutingKey, h Handler) error {
	handlerCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key RoutingKey, q chan []byte) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case body := <-q:
					if outcome, _ := settle(handlerCtx, key, body, h); outcome == settleRequeue {
						select {
						case q <- body:
							continue
						default:
						}
					}
					b.pending.Add(-1)
				}
			}
		}(key, b.queue(key))
	}
	wg.Wait()
	return nil
}

// Published 累计入队的消息数
func (b *MemoryBroker) Published() int64 {
	return b.received.Load()
}

// Flush 等待所有已入队消息处理完毕（包括处理过程中再次发布的消息）
func (b *MemoryBroker) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.pending.Load() == 0 {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return b.pending.Load() == 0
}

// Close 关闭后拒绝新的发布
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
