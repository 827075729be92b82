package adapter

import (
	"context"
	"time"
)

// Waker asks the scheduler to run a tick soon. Delivery is best effort; the
// heartbeat tick is the liveness backstop when a wake is lost.
type Waker interface {
	Wake(ctx context.Context) error
}

// TickRecorder stores and reads the time of the last scheduler tick.
type TickRecorder interface {
	RecordTick(ctx context.Context, at time.Time) error
	LastTick(ctx context.Context) (time.Time, error)
}
