package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/events"
	"github.com/iliyamo/secure-forum/internal/middleware"
	"github.com/iliyamo/secure-forum/internal/repository"
	"github.com/iliyamo/secure-forum/internal/utils"
	"github.com/iliyamo/secure-forum/internal/validation"
)

// UserHandler serves the user directory and the caller's own profile.  Get
// and Update are mounted behind middleware.RequireOwner.
type UserHandler struct {
	Users      *repository.UserRepo
	Events     EventPublisher
	BcryptCost int
}

func NewUserHandler(users *repository.UserRepo, pub EventPublisher, bcryptCost int) *UserHandler {
	return &UserHandler{Users: users, Events: pub, BcryptCost: bcryptCost}
}

type updateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"omitempty,min=6,max=72"`
}

func (r *updateUserRequest) Validate() error { return validation.Struct(r) }

// List returns id, username, role and created_at of every user.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return storeError(err, "")
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "users": out})
}

// Get returns the caller's own profile.
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := middleware.OwnerID(c)
	if !ok {
		return errs.NewForbiddenError("access denied")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return storeError(err, "user not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": toUserResponse(u)})
}

// Update changes the caller's email and optionally their password.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := middleware.OwnerID(c)
	if !ok {
		return errs.NewForbiddenError("access denied")
	}
	var req updateUserRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	var hash string
	if req.Password != "" {
		var err error
		if hash, err = utils.HashPassword(req.Password, h.BcryptCost); err != nil {
			return errs.NewBadRequestError(err.Error(), "", nil)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, id, req.Email, hash)
	if err != nil {
		return storeError(err, "user not found")
	}

	if h.Events != nil {
		ev := events.ProfileUpdatedEvent{UserID: u.ID, Username: u.Username, PasswordChanged: hash != "", UpdatedAt: time.Now().UTC()}
		publishAsync(c.Request().Context(), func(ctx context.Context) error { return h.Events.ProfileUpdated(ctx, ev) })
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Profile updated successfully",
		"user":    toUserResponse(u),
	})
}
