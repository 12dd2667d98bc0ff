// Package protocol defines the wire envelopes exchanged between admin clients
// and the server: a tagged operation plus a JSON payload, answered by either a
// serialized result or a structured failure descriptor. Entity payloads carry
// their lifecycle tag so a single save operation can express insert, update
// and delete.
package protocol

import (
	"encoding/json"
	"time"
)

// Operation names a client can invoke.
const (
	OpLogin  = "login"
	OpLogout = "logout"
	OpRoster = "roster"

	OpSeminarList = "seminar.list"
	OpSeminarSave = "seminar.save"

	OpScheduleList = "schedule.list"
	OpScheduleGet  = "schedule.get"
	OpScheduleSave = "schedule.save"

	OpParticipantList   = "participant.list"
	OpParticipantSearch = "participant.search"
	OpParticipantSave   = "participant.save"

	OpInstitutionList = "institution.list"
	OpInstitutionSave = "institution.save"
)

// OpRosterUpdate is pushed by the server to every authenticated connection
// whenever an admin logs in or out.
const OpRosterUpdate = "roster.update"

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Failure kinds, one per error class the server reports.
const (
	KindAuthConflict       = "auth_conflict"
	KindInvalidCredentials = "invalid_credentials"
	KindNotAuthenticated   = "not_authenticated"
	KindValidation         = "validation"
	KindPersistence        = "persistence"
	KindBadRequest         = "bad_request"
	KindBind               = "bind"
	KindConfigMissing      = "config_missing"
	KindConnectionLost     = "connection_lost"
)

// Request is the client-to-server envelope.
type Request struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the server-to-client envelope, either a result payload or a
// failure descriptor, never both.
type Response struct {
	Op      string          `json:"op"`
	Status  string          `json:"status"`
	Error   *Failure        `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Failure describes a rejected operation.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OK builds a success response, marshaling payload if non-nil.
func OK(op string, payload any) (*Response, error) {
	resp := &Response{Op: op, Status: StatusOK}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		resp.Payload = data
	}
	return resp, nil
}

// Fail builds a failure response.
func Fail(op, kind, message string) *Response {
	return &Response{Op: op, Status: StatusError, Error: &Failure{Kind: kind, Message: message}}
}

// LoginRequest is the payload for OpLogin.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// LoginResult is the payload answering a successful OpLogin.
type LoginResult struct {
	Handle      string    `json:"handle"`
	AdminID     int64     `json:"adminId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	LoginAt     time.Time `json:"loginAt"`
}

// SearchRequest is the payload for OpParticipantSearch. The needle is matched
// against first and last names through a parametrized LIKE filter; it is never
// interpolated into SQL.
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=200"`
}

// GetRequest addresses a single entity by identity.
type GetRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// RosterEntry is one connected admin in a roster payload.
type RosterEntry struct {
	AdminID     int64     `json:"adminId"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	LoginAt     time.Time `json:"loginAt"`
}
