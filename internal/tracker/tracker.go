// Package tracker watches a single transaction signature over the node's
// WebSocket notification channel and reports the first terminal notification.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of one tracked signature.
type State string

// State constants
const (
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateNotified     State = "notified"
	StateConfirmed    State = "confirmed"
	StateFailed       State = "failed"
	StateDisconnected State = "disconnected"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateDisconnected
}

// subscribeRequestID is the id of the only request sent on a tracker connection.
const subscribeRequestID = 1

// Config configures Tracker behavior.
type Config struct {
	// Commitment, when set, is passed to signatureSubscribe. Empty uses the node default.
	Commitment string
	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration
	// WriteTimeout bounds writes of the subscribe request and close frame.
	WriteTimeout time.Duration
}

// DefaultConfig returns default tracker configuration.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Result is the terminal observation for a signature.
type Result struct {
	Signature      string
	State          State // StateConfirmed or StateFailed
	SubscriptionID int64
	Slot           int64
	Err            interface{} // on-chain error payload, nil when confirmed
}

// Reason renders the on-chain error payload, empty when confirmed.
func (r *Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	b, err := json.Marshal(r.Err)
	if err != nil {
		return fmt.Sprintf("%v", r.Err)
	}
	return string(b)
}

// TransportError is returned when the channel closes or errors before a
// terminal notification. The tracker is then Disconnected.
type TransportError struct {
	Signature string
	// LastState is the state the tracker was in when the channel dropped.
	LastState State
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tracker %s disconnected while %s: %v", e.Signature, e.LastState, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Tracker opens one subscription per tracked signature. It never reconnects.
type Tracker struct {
	endpoint string
	config   Config
	logger   *log.Logger
}

// New creates a Tracker for a ws:// or wss:// endpoint.
func New(endpoint string, config *Config, logger *log.Logger) *Tracker {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tracker{endpoint: endpoint, config: cfg, logger: logger}
}

// Track subscribes to signature and blocks until the first matching
// notification arrives, the channel drops, or ctx is done. Exactly one
// notification is consumed; the channel is closed afterwards.
func (t *Tracker) Track(ctx context.Context, signature string) (*Result, error) {
	w := &watch{tracker: t, signature: signature, state: StateConnecting}
	return w.run(ctx)
}

// watch is the state machine of one Track call.
type watch struct {
	tracker   *Tracker
	signature string
	state     State
	subID     int64
}

func (w *watch) transition(next State) {
	w.tracker.logger.Printf("Signature %s: %s -> %s", w.signature, w.state, next)
	w.state = next
}

func (w *watch) disconnected(err error) error {
	last := w.state
	w.transition(StateDisconnected)
	return &TransportError{Signature: w.signature, LastState: last, Err: err}
}

func (w *watch) run(ctx context.Context) (*Result, error) {
	cfg := w.tracker.config

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, w.tracker.endpoint, nil)
	cancel()
	if err != nil {
		return nil, w.disconnected(fmt.Errorf("websocket dial: %w", err))
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			// WriteControl may run concurrently with the subscribe write.
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.WriteTimeout))
			conn.Close()
		})
	}
	defer closeConn()

	// Unblock the read loop when ctx is done.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-stop:
		}
	}()

	params := []interface{}{w.signature}
	if cfg.Commitment != "" {
		params = append(params, map[string]string{"commitment": cfg.Commitment})
	}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  "signatureSubscribe",
		Params:  params,
	}
	conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return nil, w.disconnected(w.cause(ctx, fmt.Errorf("write subscribe: %w", err)))
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil, w.disconnected(w.cause(ctx, fmt.Errorf("read: %w", err)))
		}

		result, err := w.handle(message)
		if err != nil {
			return nil, w.disconnected(err)
		}
		if result != nil {
			closeConn()
			return result, nil
		}
	}
}

// cause prefers the context error over the transport error it provoked.
func (w *watch) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

// handle processes one message. It returns a Result on a terminal notification,
// an error when the subscription was rejected, and nil, nil otherwise.
func (w *watch) handle(message []byte) (*Result, error) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		w.tracker.logger.Printf("Signature %s: ignoring malformed message: %v", w.signature, err)
		return nil, nil
	}

	switch {
	case msg.ID != nil && *msg.ID == subscribeRequestID && w.state == StateConnecting:
		if msg.Error != nil {
			return nil, fmt.Errorf("subscribe rejected: %d %s", msg.Error.Code, msg.Error.Message)
		}
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return nil, fmt.Errorf("subscribe response: %w", err)
		}
		w.subID = subID
		w.transition(StateSubscribed)
		return nil, nil

	case msg.Method == "signatureNotification" && w.state == StateSubscribed:
		if msg.Params == nil || msg.Params.Subscription != w.subID {
			return nil, nil
		}
		w.transition(StateNotified)

		result := &Result{Signature: w.signature, SubscriptionID: w.subID}
		slot, errPayload, err := decodeSignatureResult(msg.Params.Result)
		if err != nil {
			w.tracker.logger.Printf("Signature %s: malformed notification: %v", w.signature, err)
			errPayload = "malformed notification: " + err.Error()
		}
		result.Slot = slot
		result.Err = errPayload

		if result.Err != nil {
			w.transition(StateFailed)
		} else {
			w.transition(StateConfirmed)
		}
		result.State = w.state
		return result, nil
	}
	return nil, nil
}

// Endpoint derives the WebSocket endpoint from an HTTP RPC endpoint
// (https becomes wss, http becomes ws).
func Endpoint(rpcEndpoint string) (string, error) {
	u, err := url.Parse(rpcEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", errors.New("endpoint scheme must be http, https, ws or wss")
	}
	if u.Host == "" {
		return "", errors.New("endpoint has no host")
	}
	return u.String(), nil
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// wsSignatureResult accepts both {"context":..,"value":{"err":..}} and a bare {"err":..}.
type wsSignatureResult struct {
	Context *struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value json.RawMessage `json:"value"`
	Err   json.RawMessage `json:"err"`
}

// decodeSignatureResult returns the slot and the on-chain error payload (nil on
// success). A result without an err field is malformed.
func decodeSignatureResult(raw json.RawMessage) (int64, interface{}, error) {
	var payload wsSignatureResult
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, nil, err
	}
	var slot int64
	if payload.Context != nil {
		slot = payload.Context.Slot
	}

	errRaw := payload.Err
	if len(payload.Value) > 0 && string(payload.Value) != "null" {
		var value map[string]json.RawMessage
		if err := json.Unmarshal(payload.Value, &value); err != nil {
			return slot, nil, fmt.Errorf("value: %w", err)
		}
		errRaw = value["err"]
	}
	if len(errRaw) == 0 {
		return slot, nil, errors.New("no err field")
	}

	var errPayload interface{}
	if err := json.Unmarshal(errRaw, &errPayload); err != nil {
		return slot, nil, fmt.Errorf("err: %w", err)
	}
	return slot, errPayload, nil
}
