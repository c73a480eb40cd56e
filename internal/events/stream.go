package events

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
)

// HeartbeatInterval is how often an idle stream writes an SSE comment so
// proxies keep the connection open.
const HeartbeatInterval = 30 * time.Second

// FlushWriter is a response writer that can push buffered bytes to the
// client. *echo.Response satisfies it.
type FlushWriter interface {
	io.Writer
	Flush()
}

// Subscription buffers the events of one subject until they are streamed.
type Subscription struct {
	sub       *nats.Subscription
	msgs      chan *nats.Msg
	heartbeat time.Duration
}

// Subscribe starts buffering messages on subject. Subscribe before checking
// whether a generation has already finished, so no event is lost in
// between.
func Subscribe(nc *nats.Conn, subject string) (*Subscription, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return &Subscription{sub: sub, msgs: msgs, heartbeat: HeartbeatInterval}, nil
}

// Close unsubscribes.
func (s *Subscription) Close() error {
	return s.sub.Unsubscribe()
}

// Stream writes events to w as SSE until a terminal event is written or ctx
// is done.
func (s *Subscription) Stream(ctx context.Context, w FlushWriter) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.msgs:
			kind, ok := kindOf(msg.Subject)
			if !ok {
				continue
			}
			if err := WriteEvent(w, kind, msg.Data); err != nil {
				return err
			}
			if kind.Terminal() {
				return nil
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			w.Flush()

		case <-ctx.Done():
			return nil
		}
	}
}

// Stream subscribes to subject and streams it to w. See Subscription.Stream.
func Stream(ctx context.Context, nc *nats.Conn, subject string, w FlushWriter) error {
	sub, err := Subscribe(nc, subject)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Close()
	}()
	return sub.Stream(ctx, w)
}

// WriteEvent writes one SSE event and flushes it.
func WriteEvent(w FlushWriter, kind Kind, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
