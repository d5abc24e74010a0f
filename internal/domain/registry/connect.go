package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/medlink/notify-delivery-service/internal/domain/event"
)

// Interface guard
var _ Connector = (*connect)(nil)

// Connector is the hub-facing handle of one live client connection.
// Transport handlers (websocket, long-poll) pump events out of Recv;
// the registry pushes into it through Send.
type Connector interface {
	GetID() uuid.UUID
	GetUserID() uuid.UUID
	GetMetadata() ConnectMetadata
	Send(ev event.Eventer, timeout time.Duration) bool
	Recv() <-chan event.Eventer
	// Done is closed once the connection is torn down. Drain loops watch
	// it to abandon remaining sends without surfacing an error.
	Done() <-chan struct{}
	Close()
}

// ConnectMetadata describes the transport a connection arrived on.
type ConnectMetadata struct {
	Transport string
	RemoteIP  string
	UserAgent string
}

type connect struct {
	id            uuid.UUID
	userID        uuid.UUID
	metadata      ConnectMetadata
	establishedAt time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	sendCh    chan event.Eventer
	closeOnce sync.Once

	droppedCount uint64 // atomic
}

// connectPool recycles connector shells across reconnect cycles to keep
// GC pressure flat under connection churn.
var connectPool = sync.Pool{
	New: func() any {
		return &connect{}
	},
}

// NewConnector builds a pooled connector bound to the transport's context.
func NewConnector(ctx context.Context, userID uuid.UUID, md ConnectMetadata, bufferSize int) Connector {
	c := connectPool.Get().(*connect)
	c.reset(ctx, userID, md, bufferSize)
	return c
}

// reset wipes stale pooled state, including the sync.Once guard.
func (c *connect) reset(ctx context.Context, userID uuid.UUID, md ConnectMetadata, bufferSize int) {
	childCtx, cancel := context.WithCancel(ctx)

	*c = connect{
		id:            uuid.New(),
		userID:        userID,
		metadata:      md,
		establishedAt: time.Now(),
		ctx:           childCtx,
		cancelFn:      cancel,
		sendCh:        make(chan event.Eventer, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID             { return c.id }
func (c *connect) GetUserID() uuid.UUID         { return c.userID }
func (c *connect) GetMetadata() ConnectMetadata { return c.metadata }
func (c *connect) Done() <-chan struct{}        { return c.ctx.Done() }
func (c *connect) Recv() <-chan event.Eventer   { return c.sendCh }

// Send enqueues an event into the session's mailbox. It waits up to
// timeout for buffer space before falling back to priority shedding, so
// one stalled consumer never holds a fanout hostage.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		return true
	case <-ctx.Done():
		return c.shedLowPriority(ev)
	}
}

// shedLowPriority handles a saturated buffer: a low-priority incoming
// event is dropped outright, a higher-priority one may evict an older
// low-priority entry to make room.
func (c *connect) shedLowPriority(ev event.Eventer) bool {
	if ev.GetPriority() <= event.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	select {
	case old := <-c.sendCh:
		if old.GetPriority() < ev.GetPriority() {
			select {
			case c.sendCh <- ev:
				return true
			default:
			}
		} else {
			// The evicted event outranks ours; best effort to restore it.
			select {
			case c.sendCh <- old:
			default:
			}
		}
	default:
	}

	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

// Close terminates the session exactly once and recycles the shell.
// Safe to call concurrently from the hub, the cell and transport defers.
// The mailbox channel is never closed: late senders racing a teardown
// must hit the context guard, not a closed-channel panic. Consumers
// watch Done instead of a channel close.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
		c.metadata = ConnectMetadata{}

		connectPool.Put(c)
	})
}
