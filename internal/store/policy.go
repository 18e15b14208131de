package store

import (
	"context"
	"fmt"

	"github.com/matheus3301/layover/internal/backend"
)

// checkInsert applies row policies to a new record. Messages cannot be sent
// across a block in either direction, and an acting user can only send as
// themself.
func (r *Records) checkInsert(ctx context.Context, table string, rec backend.Row) error {
	if table != "messages" {
		return nil
	}
	sender, receiver := rec.String("sender_id"), rec.String("receiver_id")
	if actor := backend.UserFrom(ctx); actor != "" && actor != sender {
		return backend.Errorf(backend.CodeAccessDenied, "cannot send as %s", sender)
	}
	blocked, err := r.blocked(ctx, sender, receiver)
	if err != nil {
		return err
	}
	if blocked {
		return backend.Errorf(backend.CodeAccessDenied, "messages between %s and %s are blocked", sender, receiver)
	}
	return nil
}

// checkRead hides connections whose parties have blocked each other from an
// acting user. Asking for such a connection by id is denied outright.
func (r *Records) checkRead(ctx context.Context, table string, q backend.Query, rows []backend.Row) ([]backend.Row, error) {
	if table != "connections" || backend.UserFrom(ctx) == "" {
		return rows, nil
	}
	_, byID := q.Eq["id"]
	visible := rows[:0]
	for _, row := range rows {
		blocked, err := r.blocked(ctx, row.String("user1_id"), row.String("user2_id"))
		if err != nil {
			return nil, err
		}
		if !blocked {
			visible = append(visible, row)
			continue
		}
		if byID {
			return nil, backend.Errorf(backend.CodeAccessDenied, "connection %s is blocked", row.String("id"))
		}
	}
	return visible, nil
}

func (r *Records) blocked(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" {
		return false, nil
	}
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blocks
		WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)`,
		a, b, b, a).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return n > 0, nil
}
