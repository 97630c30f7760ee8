// Package subscriber maintains the single upstream websocket
// subscription that seeds the pipeline.
//
// The Rust original (original_source/src/client/ws.rs) modeled this as
// a generic WsClient[T: Subscribable] pushing onto an unbounded
// crossbeam SegQueue, with no reconnect policy: a closed receive
// channel just ended the loop. This package adds the
// exponential-backoff reconnect and bounded, drop-oldest slotCh that
// the original never had; those are this package's own contribution,
// built in the teacher's idiom (gorilla/websocket dial loop, structured
// logging, context-first cancellation) rather than the original's.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"github.com/serfrae/solder/internal/apperror"
	"github.com/serfrae/solder/internal/logging"
	"github.com/serfrae/solder/internal/metrics"
	"github.com/serfrae/solder/internal/model"
)

const (
	backoffBase    = 100 * time.Millisecond
	backoffMaxTry  = 5
	backoffJitterN = 100 // milliseconds
)

// Dialer opens a websocket connection to url. Production code backs
// this with gorilla/websocket; tests back it with a fake server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is the minimal websocket surface the subscriber needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// GorillaDialer is a Dialer backed by gorilla/websocket.
type GorillaDialer struct{}

func (GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// wireSlotNotification is the slotSubscribe notification payload.
type wireSlotNotification struct {
	Params struct {
		Result struct {
			Slot       uint64 `json:"slot"`
			Parent     uint64 `json:"parent"`
			Root       uint64 `json:"root"`
		} `json:"result"`
	} `json:"params"`
}

// Subscriber owns the single upstream websocket connection and emits
// SlotNotification items onto a bounded, caller-owned channel.
type Subscriber struct {
	url    string
	dialer Dialer
	log    logging.Logger
}

// New constructs a Subscriber for the given websocket URL.
func New(url string, dialer Dialer) *Subscriber {
	if dialer == nil {
		dialer = GorillaDialer{}
	}
	return &Subscriber{
		url:    url,
		dialer: dialer,
		log:    logging.Root().With("component", "subscriber"),
	}
}

// Start blocks until ctx is cancelled, maintaining the subscription and
// forwarding every SlotNotification onto out. out is a bounded channel;
// when full, the oldest undelivered notification is dropped in favor
// of the new one, and metrics.SlotsDropped is incremented.
//
// On subscribe failure or an upstream close, Start backs off
// exponentially (base 100ms, doubled per attempt, ±0-100ms jitter) up
// to 5 attempts before returning a fatal error.
func (s *Subscriber) Start(ctx context.Context, out chan model.SlotNotification) error {
	for {
		conn, err := s.connectWithBackoff(ctx)
		if err != nil {
			return apperror.Wrap(apperror.Fatal, "subscriber exhausted reconnect attempts", err)
		}
		if conn == nil {
			// ctx was cancelled during backoff.
			return nil
		}

		closeErr := s.forward(ctx, conn, out)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("subscription closed, will resubscribe", "err", closeErr)
	}
}

// connectWithBackoff dials s.url, retrying with exponential backoff up
// to backoffMaxTry attempts. Returns (nil, nil) if ctx is cancelled
// during a backoff sleep.
func (s *Subscriber) connectWithBackoff(ctx context.Context) (Conn, error) {
	var lastErr error
	delay := backoffBase
	for attempt := 1; attempt <= backoffMaxTry; attempt++ {
		conn, err := s.dialer.Dial(ctx, s.url)
		if err == nil {
			if err := sendSlotSubscribe(conn); err != nil {
				conn.Close()
				lastErr = err
			} else {
				return conn, nil
			}
		} else {
			lastErr = err
		}

		s.log.Warn("subscribe attempt failed", "attempt", attempt, "err", lastErr)
		if attempt == backoffMaxTry {
			break
		}

		jitter := time.Duration(rand.Intn(backoffJitterN)) * time.Millisecond
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return nil, nil
		}
		delay *= 2
	}
	return nil, fmt.Errorf("all %d subscribe attempts failed: %w", backoffMaxTry, lastErr)
}

// sendSlotSubscribe issues the slotSubscribe request over conn. conn
// must additionally implement the writer half when backed by a real
// websocket; GorillaDialer's Conn satisfies this via a type assertion
// since the minimal Conn interface above is read/close only.
func sendSlotSubscribe(conn Conn) error {
	type writer interface {
		WriteMessage(messageType int, data []byte) error
	}
	w, ok := conn.(writer)
	if !ok {
		return nil
	}
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "slotSubscribe",
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return w.WriteMessage(websocket.TextMessage, body)
}

// forward reads notifications from conn until it errors or ctx is
// cancelled, pushing each onto out with drop-oldest back-pressure.
func (s *Subscriber) forward(ctx context.Context, conn Conn, out chan model.SlotNotification) error {
	msgCh := make(chan []byte, 1)
	errCh := make(chan error, 1)

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case msg := <-msgCh:
			notif, ok := decodeSlotNotification(msg)
			if !ok {
				continue
			}
			pushWithDropOldest(out, notif)
		}
	}
}

func decodeSlotNotification(msg []byte) (model.SlotNotification, bool) {
	var wire wireSlotNotification
	if err := json.Unmarshal(msg, &wire); err != nil {
		return model.SlotNotification{}, false
	}
	if wire.Params.Result.Slot == 0 {
		return model.SlotNotification{}, false
	}
	return model.SlotNotification{
		Slot:       wire.Params.Result.Slot,
		ParentSlot: wire.Params.Result.Parent,
		RootSlot:   wire.Params.Result.Root,
	}, true
}

// pushWithDropOldest sends notif onto out, and if out is full, drops
// the oldest queued notification to make room rather than blocking.
func pushWithDropOldest(out chan model.SlotNotification, notif model.SlotNotification) {
	select {
	case out <- notif:
		return
	default:
	}
	select {
	case <-out:
		metrics.SlotsDropped.Inc()
	default:
	}
	select {
	case out <- notif:
	default:
		metrics.SlotsDropped.Inc()
	}
}
