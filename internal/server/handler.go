package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"seminarhub/internal/registry"
	"seminarhub/internal/store"
	"seminarhub/pkg/domain"
	"seminarhub/pkg/protocol"
)

// connState is the per-connection machine: a connection accepts only a login
// until authenticated, then entity operations until logout, disconnect or
// server stop.
type connState int

const (
	stateAwaitingLogin connState = iota
	stateAuthenticated
	stateClosed
)

// handler runs one connection. Requests on a connection are strictly
// sequential: a request fully completes, persistence included, before the
// next one is read.
type handler struct {
	conn     *Conn
	registry *registry.Registry
	engine   *store.Engine
	validate *validator.Validate
	log      *zap.Logger

	mu      sync.Mutex
	state   connState
	session *registry.Session
}

func newHandler(conn *Conn, reg *registry.Registry, engine *store.Engine, validate *validator.Validate, log *zap.Logger) *handler {
	return &handler{
		conn:     conn,
		registry: reg,
		engine:   engine,
		validate: validate,
		log:      log,
		state:    stateAwaitingLogin,
	}
}

func (h *handler) isAuthenticated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateAuthenticated
}

// run reads and dispatches requests until the client disconnects, sends an
// explicit logout, or the supervisor closes the socket. The registry logout
// on the way out is best effort and idempotent.
func (h *handler) run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		h.state = stateClosed
		session := h.session
		h.session = nil
		h.mu.Unlock()

		if session != nil {
			h.registry.Logout(session.Handle)
		}
		_ = h.conn.Close()
	}()

	for {
		_, data, err := h.conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("connection read failed", zap.Error(err))
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			// A malformed envelope terminates this connection only.
			h.log.Warn("malformed request envelope, closing connection", zap.Error(err))
			_ = h.conn.Send(protocol.Fail("", protocol.KindBadRequest, "malformed request envelope"))
			return
		}

		resp := h.dispatch(ctx, &req)
		if resp != nil {
			if err := h.conn.Send(resp); err != nil {
				return
			}
		}

		if req.Op == protocol.OpLogout {
			return
		}
	}
}

func (h *handler) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	if state == stateAwaitingLogin && req.Op != protocol.OpLogin {
		return protocol.Fail(req.Op, protocol.KindNotAuthenticated, "login required")
	}

	switch req.Op {
	case protocol.OpLogin:
		return h.handleLogin(ctx, req)
	case protocol.OpLogout:
		return h.handleLogout(req)
	case protocol.OpRoster:
		return h.handleRoster(req)

	case protocol.OpSeminarList:
		return h.handleList(ctx, req, &domain.Seminar{})
	case protocol.OpSeminarSave:
		return h.handleSave(ctx, req, &domain.Seminar{})

	case protocol.OpInstitutionList:
		return h.handleList(ctx, req, &domain.EducationalInstitution{})
	case protocol.OpInstitutionSave:
		return h.handleSave(ctx, req, &domain.EducationalInstitution{})

	case protocol.OpParticipantList:
		return h.handleList(ctx, req, &domain.Participant{})
	case protocol.OpParticipantSave:
		return h.handleSave(ctx, req, &domain.Participant{})
	case protocol.OpParticipantSearch:
		return h.handleParticipantSearch(ctx, req)

	case protocol.OpScheduleList:
		return h.handleList(ctx, req, &domain.SeminarSchedule{})
	case protocol.OpScheduleGet:
		return h.handleScheduleGet(ctx, req)
	case protocol.OpScheduleSave:
		return h.handleScheduleSave(ctx, req)
	}
	return protocol.Fail(req.Op, protocol.KindBadRequest, "unknown operation")
}

func (h *handler) handleLogin(ctx context.Context, req *protocol.Request) *protocol.Response {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()
	if state == stateAuthenticated {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "already logged in")
	}

	var login protocol.LoginRequest
	if err := json.Unmarshal(req.Payload, &login); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "invalid login payload")
	}
	if err := h.validate.Struct(&login); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "username and password are required")
	}

	session, err := h.registry.Login(ctx, login.Username, login.Password)
	if err != nil {
		return failFrom(req.Op, err)
	}

	h.mu.Lock()
	h.session = session
	h.state = stateAuthenticated
	h.mu.Unlock()

	resp, err := protocol.OK(req.Op, &protocol.LoginResult{
		Handle:      session.Handle,
		AdminID:     session.Admin.AdminID,
		Username:    session.Admin.Username,
		DisplayName: session.Admin.DisplayName,
		LoginAt:     session.LoginAt,
	})
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

func (h *handler) handleLogout(req *protocol.Request) *protocol.Response {
	h.mu.Lock()
	session := h.session
	h.session = nil
	h.mu.Unlock()

	if session != nil {
		h.registry.Logout(session.Handle)
	}
	resp, _ := protocol.OK(req.Op, nil)
	return resp
}

func (h *handler) handleRoster(req *protocol.Request) *protocol.Response {
	resp, err := protocol.OK(req.Op, rosterEntries(h.registry.ListActive()))
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

func (h *handler) handleList(ctx context.Context, req *protocol.Request, prototype domain.Entity) *protocol.Response {
	entities, err := h.engine.SelectAll(ctx, prototype)
	if err != nil {
		return failFrom(req.Op, err)
	}
	if entities == nil {
		entities = []domain.Entity{}
	}
	resp, err := protocol.OK(req.Op, entities)
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

// savable is an entity that can validate itself after arriving off the wire.
type savable interface {
	domain.Entity
	Validate() error
}

func (h *handler) handleSave(ctx context.Context, req *protocol.Request, ent savable) *protocol.Response {
	if err := json.Unmarshal(req.Payload, ent); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "invalid entity payload")
	}
	if resp := checkSavable(req.Op, ent); resp != nil {
		return resp
	}
	if _, err := h.engine.Persist(ctx, ent); err != nil {
		return failFrom(req.Op, err)
	}
	resp, err := protocol.OK(req.Op, ent)
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

func (h *handler) handleScheduleSave(ctx context.Context, req *protocol.Request) *protocol.Response {
	schedule := &domain.SeminarSchedule{}
	if err := json.Unmarshal(req.Payload, schedule); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "invalid schedule payload")
	}
	if schedule.CreatedBy == nil {
		h.mu.Lock()
		if h.session != nil {
			schedule.CreatedBy = h.session.Admin.Skeletal()
		}
		h.mu.Unlock()
	}
	if resp := checkSavable(req.Op, schedule); resp != nil {
		return resp
	}
	if _, err := h.engine.PersistSchedule(ctx, schedule); err != nil {
		return failFrom(req.Op, err)
	}
	resp, err := protocol.OK(req.Op, schedule)
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

func (h *handler) handleScheduleGet(ctx context.Context, req *protocol.Request) *protocol.Response {
	var get protocol.GetRequest
	if err := json.Unmarshal(req.Payload, &get); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(&get); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "a positive id is required")
	}
	schedule, err := h.engine.GetSchedule(ctx, get.ID)
	if err != nil {
		return failFrom(req.Op, err)
	}
	resp, err := protocol.OK(req.Op, schedule)
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

func (h *handler) handleParticipantSearch(ctx context.Context, req *protocol.Request) *protocol.Response {
	var search protocol.SearchRequest
	if err := json.Unmarshal(req.Payload, &search); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(&search); err != nil {
		return protocol.Fail(req.Op, protocol.KindBadRequest, "a search query of at most 200 characters is required")
	}
	participants, err := h.engine.SearchParticipants(ctx, search.Query)
	if err != nil {
		return failFrom(req.Op, err)
	}
	if participants == nil {
		participants = []*domain.Participant{}
	}
	resp, err := protocol.OK(req.Op, participants)
	if err != nil {
		return protocol.Fail(req.Op, protocol.KindPersistence, err.Error())
	}
	return resp
}

// checkSavable validates a wire entity before it may reach the store. Deleted
// entities carry only an identity; everything else must satisfy the domain
// invariants.
func checkSavable(op string, ent savable) *protocol.Response {
	if ent.State() == domain.StateDeleted {
		if ent.ID() == 0 {
			return protocol.Fail(op, protocol.KindValidation, "an identity is required to delete")
		}
		return nil
	}
	if ent.State() == domain.StateUpdated && ent.ID() == 0 {
		return protocol.Fail(op, protocol.KindValidation, "an identity is required to update")
	}
	if err := ent.Validate(); err != nil {
		return failFrom(op, err)
	}
	return nil
}

// failFrom maps internal errors onto the wire failure taxonomy.
func failFrom(op string, err error) *protocol.Response {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return protocol.Fail(op, protocol.KindValidation, vErr.Error())
	case errors.Is(err, registry.ErrAuthConflict):
		return protocol.Fail(op, protocol.KindAuthConflict, "admin is already logged in")
	case errors.Is(err, registry.ErrInvalidCredentials):
		return protocol.Fail(op, protocol.KindInvalidCredentials, "invalid username or password")
	case errors.Is(err, store.ErrNotFound):
		return protocol.Fail(op, protocol.KindBadRequest, "no such entity")
	default:
		return protocol.Fail(op, protocol.KindPersistence, err.Error())
	}
}

func rosterEntries(sessions []*registry.Session) []protocol.RosterEntry {
	entries := make([]protocol.RosterEntry, len(sessions))
	for i, session := range sessions {
		entries[i] = protocol.RosterEntry{
			AdminID:     session.Admin.AdminID,
			Username:    session.Admin.Username,
			DisplayName: session.Admin.DisplayName,
			LoginAt:     session.LoginAt,
		}
	}
	return entries
}
