package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// receivedCommand is a command as seen by the fake exchange.
type receivedCommand struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params struct {
		Channels      []string `json:"channels"`
		MarketTicker  string   `json:"market_ticker"`
		MarketTickers []string `json:"market_tickers"`
		SIDs          []int64  `json:"sids"`
		Action        string   `json:"action"`
	} `json:"params"`
}

// fakeExchange answers subscribe, update_subscription and unsubscribe the
// way the Kalshi websocket does.
type fakeExchange struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	commands []receivedCommand
	nextSID  int64
	reject   map[string]string // channel -> error text
	noReply  bool              // read commands but never answer
	silentAt int               // stop reading after this many commands, 0 = never
	header   http.Header       // handshake headers of the last connection
	path     string

	received chan receivedCommand
	stop     chan struct{}
	stopOnce sync.Once
}

func newFakeExchange(t *testing.T) *fakeExchange {
	t.Helper()
	ex := &fakeExchange{
		t:        t,
		reject:   make(map[string]string),
		received: make(chan receivedCommand, 64),
		stop:     make(chan struct{}),
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	ex.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ex.mu.Lock()
		ex.conn = conn
		ex.header = r.Header.Clone()
		ex.path = r.URL.Path
		ex.mu.Unlock()

		ex.serve(conn)
	}))

	t.Cleanup(ex.Close)
	return ex
}

func (ex *fakeExchange) URL() string {
	return "ws" + strings.TrimPrefix(ex.server.URL, "http") + "/trade-api/ws/v2"
}

func (ex *fakeExchange) Close() {
	ex.stopOnce.Do(func() { close(ex.stop) })
	ex.server.Close()
}

func (ex *fakeExchange) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd receivedCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			ex.t.Errorf("exchange received invalid command: %s", data)
			return
		}

		ex.mu.Lock()
		ex.commands = append(ex.commands, cmd)
		n := len(ex.commands)
		noReply := ex.noReply
		silentAt := ex.silentAt
		ex.mu.Unlock()

		ex.received <- cmd

		if !noReply {
			ex.answer(cmd)
		}
		if silentAt > 0 && n >= silentAt {
			<-ex.stop
			return
		}
	}
}

func (ex *fakeExchange) answer(cmd receivedCommand) {
	switch cmd.Cmd {
	case cmdSubscribe:
		for _, ch := range cmd.Params.Channels {
			ex.mu.Lock()
			text, rejected := ex.reject[ch]
			sid := int64(0)
			if !rejected {
				ex.nextSID++
				sid = ex.nextSID
			}
			ex.mu.Unlock()

			if rejected {
				ex.sendJSON(map[string]any{
					"id":   cmd.ID,
					"type": typeError,
					"msg":  map[string]any{"code": 6, "msg": text},
				})
				continue
			}
			ex.sendJSON(map[string]any{
				"id":   cmd.ID,
				"type": typeSubscribed,
				"msg":  map[string]any{"channel": ch, "sid": sid},
			})
		}
	case cmdUpdateSubscription:
		ex.sendJSON(map[string]any{
			"id":   cmd.ID,
			"sid":  cmd.Params.SIDs[0],
			"seq":  1,
			"type": typeOK,
			"msg":  map[string]any{"market_tickers": cmd.Params.MarketTickers},
		})
	case cmdUnsubscribe:
		for _, sid := range cmd.Params.SIDs {
			ex.sendJSON(map[string]any{
				"id":   cmd.ID,
				"sid":  sid,
				"seq":  1,
				"type": typeUnsubscribed,
			})
		}
	}
}

// push sends a raw frame to the connected client.
func (ex *fakeExchange) push(frame string) {
	ex.t.Helper()
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.conn == nil {
		ex.t.Fatal("push before client connected")
	}
	if err := ex.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		ex.t.Errorf("push failed: %v", err)
	}
}

func (ex *fakeExchange) sendJSON(v any) {
	data, _ := json.Marshal(v)
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if err := ex.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		ex.t.Logf("exchange write failed: %v", err)
	}
}

// closeWith sends a close frame to the client.
func (ex *fakeExchange) closeWith(code int, text string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	_ = ex.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func (ex *fakeExchange) Commands() []receivedCommand {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return append([]receivedCommand(nil), ex.commands...)
}

// waitCommand returns the next command the exchange reads.
func (ex *fakeExchange) waitCommand(t *testing.T) receivedCommand {
	t.Helper()
	select {
	case cmd := <-ex.received:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("exchange received no command")
		return receivedCommand{}
	}
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.CommandTimeout = 2 * time.Second
	cfg.BufferSize = 64
	return cfg
}
