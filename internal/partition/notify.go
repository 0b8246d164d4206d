package partition

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Signal identifies what a Notifier wakes a partition's run loop up for:
// a freshly appended command, a timer that may now be due, or an outbox
// entry ready for the shuffler to pick up. Polling alone would work but
// adds up to PollInterval of needless latency per hop; a notifier collapses
// that to near-zero on the common path while polling remains the fallback.
type Signal string

const (
	SignalCommand Signal = "command"
	SignalTimer   Signal = "timer"
	SignalOutbox  Signal = "outbox"
)

// Notifier pushes wake-up signals to whoever is waiting on a partition's
// queues. ChannelNotifier is enough for a single process; RedisNotifier
// lets the timer service and shuffler running in separate processes learn
// about new work without polling Postgres on a tight loop.
type Notifier interface {
	Notify(ctx context.Context, sig Signal) error
	Subscribe(ctx context.Context, sig Signal) <-chan struct{}
	Close() error
}

// ChannelNotifier is an in-process notifier: the run loop and any
// actuators sharing this partition's process wake up with no network
// round trip at all.
type ChannelNotifier struct {
	mu          sync.Mutex
	subscribers map[Signal][]chan struct{}
	closed      bool
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{subscribers: make(map[Signal][]chan struct{})}
}

func (n *ChannelNotifier) Notify(_ context.Context, sig Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	for _, ch := range n.subscribers[sig] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *ChannelNotifier) Subscribe(ctx context.Context, sig Signal) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	n.subscribers[sig] = append(n.subscribers[sig], ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[sig]
		for i, s := range subs {
			if s == ch {
				n.subscribers[sig] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}()

	return ch
}

func (n *ChannelNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, subs := range n.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	n.subscribers = nil
	return nil
}

const redisChannelPrefix = "partitiond:notify:"

// RedisNotifier broadcasts wake-up signals over Redis PUBLISH/SUBSCRIBE so
// that a timer service or shuffler deployed as a separate process from the
// partition leader still learns about new timers/outbox entries without
// polling Postgres on a tight interval.
type RedisNotifier struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[Signal][]*redisSub
	closed bool
}

type redisSub struct {
	ch     chan struct{}
	cancel context.CancelFunc
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, subs: make(map[Signal][]*redisSub)}
}

func (n *RedisNotifier) Notify(ctx context.Context, sig Signal) error {
	return n.client.Publish(ctx, redisChannelPrefix+string(sig), "1").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, sig Signal) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	subCtx, cancel := context.WithCancel(ctx)
	rs := &redisSub{ch: ch, cancel: cancel}
	n.subs[sig] = append(n.subs[sig], rs)
	n.mu.Unlock()

	pubsub := n.client.Subscribe(subCtx, redisChannelPrefix+string(sig))

	go func() {
		defer pubsub.Close()
		msgCh := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				n.removeSub(sig, rs)
				return
			case _, ok := <-msgCh:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch
}

func (n *RedisNotifier) removeSub(sig Signal, rs *redisSub) {
	n.mu.Lock()
	defer n.mu.Unlock()
	subs := n.subs[sig]
	for i, s := range subs {
		if s == rs {
			n.subs[sig] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, subs := range n.subs {
		for _, rs := range subs {
			rs.cancel()
		}
	}
	n.subs = nil
	return n.client.Close()
}
