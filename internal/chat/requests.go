package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/layover/internal/alert"
	"github.com/matheus3301/layover/internal/backend"
	"go.uber.org/zap"
)

// TableMatches holds travel requests between users.
const TableMatches = "matches"

// RequestStatus is the state of a travel request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
)

var (
	// ErrRequestNotFound is returned for requests that do not exist or are
	// not addressed to the acting user.
	ErrRequestNotFound = errors.New("request not found")
	// ErrRequestClosed is returned for requests no longer pending.
	ErrRequestClosed = errors.New("request is no longer pending")
)

// Request is a travel request seen by one of its two parties.
type Request struct {
	ID       string
	FromUser string
	ToUser   string
	TripID   string
	Status   RequestStatus
	// Name is the display name of the other party.
	Name string
}

// Incoming reports whether userID is the addressee.
func (r Request) Incoming(userID string) bool { return r.ToUser == userID }

func requestFromRow(row backend.Row) (Request, bool) {
	r := Request{
		ID:       row.String("id"),
		FromUser: row.String("from_user"),
		ToUser:   row.String("to_user"),
		TripID:   row.String("trip_id"),
		Status:   RequestStatus(row.String("status")),
		Name:     unknownName,
	}
	if r.ID == "" || r.FromUser == "" || r.ToUser == "" {
		return Request{}, false
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	return r, true
}

// Requests returns the user's pending requests, incoming and outgoing.
func (a *Actions) Requests(ctx context.Context) (incoming, outgoing []Request, err error) {
	ctx = backend.WithUser(ctx, a.userID)
	rows, err := a.store.Select(ctx, TableMatches, backend.Eq("status", string(StatusPending)).
		AnyOf(
			backend.Cond{Column: "to_user", Value: a.userID},
			backend.Cond{Column: "from_user", Value: a.userID},
		).OrderBy("created_at", true))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch requests: %w", err)
	}

	var all []Request
	others := make([]any, 0, len(rows))
	for _, row := range rows {
		r, ok := requestFromRow(row)
		if !ok {
			continue
		}
		all = append(all, r)
		others = append(others, r.other(a.userID))
	}
	names := a.names(ctx, others)
	for _, r := range all {
		if n, ok := names[r.other(a.userID)]; ok {
			r.Name = n
		}
		if r.Incoming(a.userID) {
			incoming = append(incoming, r)
		} else {
			outgoing = append(outgoing, r)
		}
	}
	return incoming, outgoing, nil
}

// AcceptRequest accepts an incoming request and opens the conversation.
// The status update and the connection insert are separate writes: if the
// insert fails the request stays accepted and no conversation exists.
func (a *Actions) AcceptRequest(ctx context.Context, requestID string) (Conversation, error) {
	ctx = backend.WithUser(ctx, a.userID)
	req, err := a.incoming(ctx, requestID)
	if err != nil {
		return Conversation{}, a.requestFailed("accept request", err)
	}

	err = a.store.Update(ctx, TableMatches, backend.Eq("id", req.ID), backend.Row{"status": string(StatusAccepted)})
	if err != nil {
		return Conversation{}, a.requestFailed("accept request", err)
	}
	row, err := a.store.Insert(ctx, TableConnections, backend.Row{
		"request_id": req.ID,
		"user1_id":   req.FromUser,
		"user2_id":   req.ToUser,
	})
	if err != nil {
		a.logger.Warn("request accepted without a connection", zap.String("request_id", req.ID))
		return Conversation{}, a.requestFailed("create connection", err)
	}

	conv := Conversation{
		ID:            row.String("id"),
		CounterpartID: req.FromUser,
		Name:          unknownName,
		LastMessage:   noMessagesText,
	}
	if rows, err := a.store.Select(ctx, TableUsers, backend.Eq("id", req.FromUser).Take(1)); err == nil && len(rows) == 1 {
		if name := rows[0].String("name"); name != "" {
			conv.Name = name
		}
		conv.Avatar = rows[0].String("photo")
	}
	if a.directory != nil {
		a.directory.Add(conv)
	}
	a.logger.Info("request accepted", zap.String("request_id", req.ID), zap.String("conversation_id", conv.ID))
	a.raise(alert.Alert{Title: "Request accepted", Description: "You can now chat with " + conv.Name + "."})
	return conv, nil
}

// DeclineRequest turns down an incoming request.
func (a *Actions) DeclineRequest(ctx context.Context, requestID string) error {
	ctx = backend.WithUser(ctx, a.userID)
	req, err := a.incoming(ctx, requestID)
	if err != nil {
		return a.requestFailed("decline request", err)
	}
	err = a.store.Update(ctx, TableMatches, backend.Eq("id", req.ID), backend.Row{"status": string(StatusDeclined)})
	if err != nil {
		return a.requestFailed("decline request", err)
	}
	return nil
}

// CancelRequest withdraws one of the user's own requests. Cancelling a
// request that is already gone is not an error.
func (a *Actions) CancelRequest(ctx context.Context, requestID string) error {
	err := a.store.Delete(backend.WithUser(ctx, a.userID), TableMatches,
		backend.Eq("id", requestID).And("from_user", a.userID))
	if err != nil {
		return a.requestFailed("cancel request", err)
	}
	return nil
}

// incoming loads a pending request addressed to the user.
func (a *Actions) incoming(ctx context.Context, requestID string) (Request, error) {
	rows, err := a.store.Select(ctx, TableMatches, backend.Eq("id", requestID).Take(1))
	if err != nil {
		return Request{}, err
	}
	if len(rows) == 0 {
		return Request{}, fmt.Errorf("%s: %w", requestID, ErrRequestNotFound)
	}
	req, ok := requestFromRow(rows[0])
	if !ok || req.ToUser != a.userID {
		return Request{}, fmt.Errorf("%s: %w", requestID, ErrRequestNotFound)
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("%s is %s: %w", requestID, req.Status, ErrRequestClosed)
	}
	return req, nil
}

func (a *Actions) names(ctx context.Context, ids []any) map[string]string {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out
	}
	rows, err := a.store.Select(ctx, TableUsers, backend.Query{}.WhereIn("id", ids...))
	if err != nil {
		a.logger.Warn("fetch request profiles failed", zap.Error(err))
		return out
	}
	for _, row := range rows {
		if name := row.String("name"); name != "" {
			out[row.String("id")] = name
		}
	}
	return out
}

func (a *Actions) requestFailed(op string, err error) error {
	a.logger.Error(op+" failed", zap.Error(err))
	switch {
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrRequestClosed):
		a.raise(alert.Alert{Title: "Request unavailable", Description: "This request was withdrawn or already answered.", Variant: alert.Destructive})
	case backend.IsAccessDenied(err):
		a.raise(alert.Alert{Title: "Access denied", Description: "You can't respond to this request.", Variant: alert.Blocked})
		return fmt.Errorf("%s: %w", op, ErrAccessDenied)
	default:
		a.raise(alert.Alert{Title: "Error", Description: "Something went wrong. Please try again.", Variant: alert.Destructive})
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r Request) other(userID string) string {
	if r.FromUser == userID {
		return r.ToUser
	}
	return r.FromUser
}
