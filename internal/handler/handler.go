// Package handler contains the forum's HTTP handlers.  Handlers only run
// after the gates configured in the router have accepted the request, and
// they return *errs.HTTPError values for the global error handler to write.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/secure-forum/internal/database"
	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/events"
	"github.com/iliyamo/secure-forum/internal/model"
	"github.com/iliyamo/secure-forum/internal/repository"
	"github.com/iliyamo/secure-forum/internal/token"
)

// dbTimeout bounds the store work of a single request.
const dbTimeout = 5 * time.Second

// TokenIssuer signs session tokens at login.
type TokenIssuer interface {
	Issue(id model.Identity) (token.Token, error)
}

// EventPublisher is satisfied by *events.Publisher, including a nil one.
type EventPublisher interface {
	PostCreated(ctx context.Context, ev events.PostCreatedEvent) error
	ProfileUpdated(ctx context.Context, ev events.ProfileUpdatedEvent) error
}

// storeError maps a repository/executor failure to the client error.  Driver
// detail never reaches the response.
func storeError(err error, notFound string) *errs.HTTPError {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errs.NewNotFoundError(notFound)
	case errors.Is(err, database.ErrPoolExhausted):
		return errs.NewServiceUnavailableError("service busy, try again")
	case errors.Is(err, database.ErrDuplicate):
		return errs.NewConflictError("resource already exists")
	}
	return errs.NewInternalServerError()
}

// publishAsync fires an event without holding up the response.
func publishAsync(ctx context.Context, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() { _ = fn(ctx) }()
}

type userResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	Role      model.Role `json:"role"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func toUserResponse(u model.User) userResponse {
	r := userResponse{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
	if !u.CreatedAt.IsZero() {
		r.CreatedAt = &u.CreatedAt
	}
	return r
}
