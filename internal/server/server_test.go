package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"seminarhub/internal/config"
	"seminarhub/internal/registry"
	"seminarhub/internal/store"
	"seminarhub/pkg/domain"
	"seminarhub/pkg/protocol"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			WriteTimeout:    2 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: config.StoreConfig{
			Driver:       config.DriverSQLite,
			Path:         ":memory:",
			MaxOpenConns: 4,
		},
	}
}

// newTestServer starts a server on an ephemeral port backed by an in-memory
// store seeded with the given admin accounts, password "hunter2" each.
func newTestServer(t *testing.T, usernames ...string) *Server {
	t.Helper()
	cfg := testConfig()

	db, err := store.Open(cfg.Store, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(context.Background(), db, cfg.Store.Driver); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	engine := store.NewEngine(db, cfg.Store.Driver, zap.NewNop())

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	for _, username := range usernames {
		admin, err := domain.NewAdmin(username, string(hash), "Admin "+username)
		if err != nil {
			t.Fatalf("NewAdmin: %v", err)
		}
		if _, err := engine.Persist(context.Background(), admin); err != nil {
			t.Fatalf("persist admin: %v", err)
		}
	}

	metrics := prometheus.NewRegistry()
	reg := registry.New(engine, metrics, zap.NewNop())
	srv := New(cfg, engine, reg, metrics, zap.NewNop())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

// client is a test-side websocket peer speaking the request envelope.
type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *Server) *client {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(op string, payload any) {
	c.t.Helper()
	req := protocol.Request{Op: op}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		req.Payload = data
	}
	if err := c.ws.WriteJSON(&req); err != nil {
		c.t.Fatalf("send %s: %v", op, err)
	}
}

// await reads until a response for op arrives, skipping roster pushes.
func (c *client) await(op string) *protocol.Response {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = c.ws.SetReadDeadline(deadline)
		var resp protocol.Response
		if err := c.ws.ReadJSON(&resp); err != nil {
			c.t.Fatalf("await %s: %v", op, err)
		}
		if resp.Op == op {
			return &resp
		}
		if resp.Op != protocol.OpRosterUpdate {
			c.t.Fatalf("await %s: unexpected response for %s", op, resp.Op)
		}
	}
}

func (c *client) login(username string) *protocol.Response {
	c.t.Helper()
	c.send(protocol.OpLogin, protocol.LoginRequest{Username: username, Password: "hunter2"})
	return c.await(protocol.OpLogin)
}

func requireOK(t *testing.T, resp *protocol.Response) {
	t.Helper()
	if resp.Status != protocol.StatusOK {
		t.Fatalf("%s failed: %+v", resp.Op, resp.Error)
	}
}

func requireFailure(t *testing.T, resp *protocol.Response, kind string) {
	t.Helper()
	if resp.Status != protocol.StatusError || resp.Error == nil {
		t.Fatalf("%s = %+v, want a failure", resp.Op, resp)
	}
	if resp.Error.Kind != kind {
		t.Fatalf("%s failure kind = %s, want %s", resp.Op, resp.Error.Kind, kind)
	}
}

func TestRequestBeforeLoginRejected(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	c := dial(t, srv)

	c.send(protocol.OpSeminarList, nil)
	requireFailure(t, c.await(protocol.OpSeminarList), protocol.KindNotAuthenticated)

	// The rejection leaves the connection open and still awaiting a login.
	requireOK(t, c.login("aleksa"))
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	c := dial(t, srv)

	resp := c.login("aleksa")
	requireOK(t, resp)
	var result protocol.LoginResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		t.Fatalf("decode login result: %v", err)
	}
	if result.Handle == "" || result.Username != "aleksa" {
		t.Errorf("login result = %+v, want a handle for aleksa", result)
	}

	c.send(protocol.OpRoster, nil)
	roster := c.await(protocol.OpRoster)
	requireOK(t, roster)
	var entries []protocol.RosterEntry
	if err := json.Unmarshal(roster.Payload, &entries); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "aleksa" {
		t.Errorf("roster = %+v, want only aleksa", entries)
	}

	c.send(protocol.OpLogout, nil)
	requireOK(t, c.await(protocol.OpLogout))

	// The server closes the connection after a logout.
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ws.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed after logout")
	}
}

func TestDuplicateLoginConflict(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	first := dial(t, srv)
	requireOK(t, first.login("aleksa"))

	second := dial(t, srv)
	requireFailure(t, second.login("aleksa"), protocol.KindAuthConflict)

	// The losing connection stays open and may retry.
	requireFailure(t, second.login("aleksa"), protocol.KindAuthConflict)
}

func TestInvalidCredentials(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	c := dial(t, srv)

	c.send(protocol.OpLogin, protocol.LoginRequest{Username: "aleksa", Password: "wrong"})
	requireFailure(t, c.await(protocol.OpLogin), protocol.KindInvalidCredentials)
}

func TestRosterBroadcastOnLogin(t *testing.T) {
	srv := newTestServer(t, "aleksa", "mira")
	first := dial(t, srv)
	requireOK(t, first.login("aleksa"))

	second := dial(t, srv)
	requireOK(t, second.login("mira"))

	// The first connection hears about the second login.
	update := first.await(protocol.OpRosterUpdate)
	var entries []protocol.RosterEntry
	if err := json.Unmarshal(update.Payload, &entries); err != nil {
		t.Fatalf("decode roster update: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("roster update entries = %d, want 2", len(entries))
	}
}

func TestMalformedEnvelopeClosesOnlyThatConnection(t *testing.T) {
	srv := newTestServer(t, "aleksa", "mira")
	healthy := dial(t, srv)
	requireOK(t, healthy.login("aleksa"))

	broken := dial(t, srv)
	if err := broken.ws.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	requireFailure(t, broken.await(""), protocol.KindBadRequest)
	_ = broken.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := broken.ws.ReadMessage(); err == nil {
		t.Error("expected the malformed connection to be closed")
	}

	// The healthy connection is unaffected.
	healthy.send(protocol.OpRoster, nil)
	requireOK(t, healthy.await(protocol.OpRoster))
}

func TestSaveAndListSeminarOverWire(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	c := dial(t, srv)
	requireOK(t, c.login("aleksa"))

	c.send(protocol.OpSeminarSave, map[string]any{
		"state":       "inserted",
		"name":        "Schema Migrations",
		"description": "zero downtime",
	})
	saved := c.await(protocol.OpSeminarSave)
	requireOK(t, saved)
	var seminar domain.Seminar
	if err := json.Unmarshal(saved.Payload, &seminar); err != nil {
		t.Fatalf("decode saved seminar: %v", err)
	}
	if seminar.SeminarID == 0 || seminar.State() != domain.StateUnchanged {
		t.Errorf("saved seminar = %+v, want an identity and the unchanged state", seminar)
	}

	c.send(protocol.OpSeminarList, nil)
	listed := c.await(protocol.OpSeminarList)
	requireOK(t, listed)
	var seminars []domain.Seminar
	if err := json.Unmarshal(listed.Payload, &seminars); err != nil {
		t.Fatalf("decode seminar list: %v", err)
	}
	if len(seminars) != 1 || seminars[0].Name != "Schema Migrations" {
		t.Errorf("listed seminars = %+v, want the saved one", seminars)
	}
}

func TestSaveRejectsInvalidEntity(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	c := dial(t, srv)
	requireOK(t, c.login("aleksa"))

	c.send(protocol.OpSeminarSave, map[string]any{"state": "inserted", "name": "   "})
	requireFailure(t, c.await(protocol.OpSeminarSave), protocol.KindValidation)
}

func TestStartFailsOnOccupiedPort(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = blocker.Close() }()

	cfg := testConfig()
	cfg.Server.Port = blocker.Addr().(*net.TCPAddr).Port

	metrics := prometheus.NewRegistry()
	reg := registry.New(nil, metrics, zap.NewNop())
	srv := New(cfg, nil, reg, metrics, zap.NewNop())
	if err := srv.Start(); !errors.Is(err, ErrBind) {
		t.Errorf("Start on occupied port = %v, want ErrBind", err)
	}
}

func TestStartFailsWithoutStoreConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{}

	metrics := prometheus.NewRegistry()
	reg := registry.New(nil, metrics, zap.NewNop())
	srv := New(cfg, nil, reg, metrics, zap.NewNop())
	if err := srv.Start(); !errors.Is(err, config.ErrConfigMissing) {
		t.Errorf("Start without store config = %v, want ErrConfigMissing", err)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	srv := newTestServer(t, "aleksa")
	if err := srv.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	c := dial(t, srv)
	requireOK(t, c.login("aleksa"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The client connection is forced closed and the roster is empty.
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			break
		}
	}

	if err := srv.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop = %v, want ErrNotRunning", err)
	}
}
