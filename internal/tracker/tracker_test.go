package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// nodeScript drives one server-side connection after the subscribe request is read.
type nodeScript func(t *testing.T, conn *websocket.Conn, req map[string]interface{})

func newNode(t *testing.T, script nodeScript) (string, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]interface{}
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		script(t, conn, req)
	}))
	return "ws" + strings.TrimPrefix(server.URL, "http"), server.Close
}

func ack(conn *websocket.Conn, subID int64) {
	conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "result": subID, "id": 1})
}

func notify(conn *websocket.Conn, subID int64, errPayload interface{}) {
	conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "signatureNotification",
		"params": map[string]interface{}{
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 5207624},
				"value":   map[string]interface{}{"err": errPayload},
			},
			"subscription": subID,
		},
	})
}

func TestTracker_Confirmed(t *testing.T) {
	closed := make(chan bool, 1)

	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		raw, _ := json.Marshal(req)
		want := `{"id":1,"jsonrpc":"2.0","method":"signatureSubscribe","params":["sig1"]}`
		if string(raw) != want {
			t.Errorf("unexpected subscribe request %s", raw)
		}

		ack(conn, 42)
		notify(conn, 7, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}) // other subscription
		notify(conn, 42, nil)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		closed <- websocket.IsCloseError(err, websocket.CloseNormalClosure)
	})
	defer stop()

	result, err := New(endpoint, nil, nil).Track(context.Background(), "sig1")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if result.State != StateConfirmed {
		t.Errorf("expected confirmed, got %s", result.State)
	}
	if result.SubscriptionID != 42 || result.Slot != 5207624 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Reason() != "" {
		t.Errorf("expected no reason, got %q", result.Reason())
	}

	select {
	case ok := <-closed:
		if !ok {
			t.Error("expected normal close after first notification")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not observe close")
	}
}

func TestTracker_Failed(t *testing.T) {
	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		ack(conn, 3)
		notify(conn, 3, map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6001}}})
		notify(conn, 3, nil)
		conn.ReadMessage()
	})
	defer stop()

	result, err := New(endpoint, nil, nil).Track(context.Background(), "sig1")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if result.State != StateFailed {
		t.Errorf("expected failed, got %s", result.State)
	}
	if !strings.Contains(result.Reason(), "InstructionError") {
		t.Errorf("unexpected reason %q", result.Reason())
	}
}

func TestTracker_NotificationPayloads(t *testing.T) {
	tests := []struct {
		name       string
		result     string
		wantState  State
		wantReason string
	}{
		{"value without err object", `{"context":{"slot":1},"value":"receivedSignature"}`, StateFailed, "malformed notification"},
		{"value missing err field", `{"context":{"slot":1},"value":{}}`, StateFailed, "malformed notification"},
		{"empty result", `{}`, StateFailed, "malformed notification"},
		{"result not an object", `"oops"`, StateFailed, "malformed notification"},
		{"bare err null", `{"err":null}`, StateConfirmed, ""},
		{"bare err payload", `{"err":"BlockhashNotFound"}`, StateFailed, "BlockhashNotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
				ack(conn, 9)
				conn.WriteMessage(websocket.TextMessage, []byte(
					`{"jsonrpc":"2.0","method":"signatureNotification","params":{"result":`+tt.result+`,"subscription":9}}`))
				conn.ReadMessage()
			})
			defer stop()

			result, err := New(endpoint, nil, nil).Track(context.Background(), "sig1")
			if err != nil {
				t.Fatalf("Track: %v", err)
			}
			if result.State != tt.wantState {
				t.Errorf("expected %s, got %s", tt.wantState, result.State)
			}
			if !strings.Contains(result.Reason(), tt.wantReason) {
				t.Errorf("reason %q does not contain %q", result.Reason(), tt.wantReason)
			}
		})
	}
}

func TestTracker_CommitmentParam(t *testing.T) {
	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		params := req["params"].([]interface{})
		if len(params) != 2 {
			t.Errorf("expected 2 params, got %v", params)
		} else if cfg, _ := params[1].(map[string]interface{}); cfg["commitment"] != "finalized" {
			t.Errorf("expected finalized commitment, got %v", params[1])
		}
		ack(conn, 1)
		notify(conn, 1, nil)
		conn.ReadMessage()
	})
	defer stop()

	cfg := DefaultConfig()
	cfg.Commitment = "finalized"
	if _, err := New(endpoint, &cfg, nil).Track(context.Background(), "sig1"); err != nil {
		t.Fatalf("Track: %v", err)
	}
}

func TestTracker_DisconnectedAfterSubscribe(t *testing.T) {
	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		ack(conn, 9)
		conn.Close()
	})
	defer stop()

	result, err := New(endpoint, nil, nil).Track(context.Background(), "sig1")
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if tErr.LastState != StateSubscribed {
		t.Errorf("expected disconnect while subscribed, got %s", tErr.LastState)
	}
}

func TestTracker_SubscribeRejected(t *testing.T) {
	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid param: WrongSize"},
		})
		conn.ReadMessage()
	})
	defer stop()

	_, err := New(endpoint, nil, nil).Track(context.Background(), "bad")

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if tErr.LastState != StateConnecting {
		t.Errorf("expected rejection while connecting, got %s", tErr.LastState)
	}
}

func TestTracker_DialFailure(t *testing.T) {
	endpoint, stop := newNode(t, func(*testing.T, *websocket.Conn, map[string]interface{}) {})
	stop()

	_, err := New(endpoint, nil, nil).Track(context.Background(), "sig1")

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestTracker_ContextTimeout(t *testing.T) {
	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		ack(conn, 1)
		conn.ReadMessage()
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := New(endpoint, nil, nil).Track(ctx, "sig1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTracker_CancelRacesSubscribe(t *testing.T) {
	endpoint, stop := newNode(t, func(t *testing.T, conn *websocket.Conn, req map[string]interface{}) {
		conn.ReadMessage()
	})
	defer stop()

	tr := New(endpoint, nil, nil)
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(time.Duration(i%5) * time.Millisecond)
			cancel()
		}()
		if _, err := tr.Track(ctx, "sig1"); err == nil {
			t.Fatal("expected an error after cancellation")
		}
		cancel()
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"https://api.mainnet-beta.solana.com", "wss://api.mainnet-beta.solana.com", false},
		{"http://localhost:8899/?api-key=x", "ws://localhost:8899/?api-key=x", false},
		{"wss://node.example/ws", "wss://node.example/ws", false},
		{"ftp://node.example", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Endpoint(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Endpoint(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
