package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/secure-forum/internal/database"
	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/middleware"
	"github.com/iliyamo/secure-forum/internal/model"
	"github.com/iliyamo/secure-forum/internal/repository"
	"github.com/iliyamo/secure-forum/internal/utils"
	"github.com/iliyamo/secure-forum/internal/validation"
)

// AuthHandler serves login, registration and the caller's own identity.
type AuthHandler struct {
	Users      *repository.UserRepo
	Tokens     TokenIssuer
	BcryptCost int
}

func NewAuthHandler(users *repository.UserRepo, tokens TokenIssuer, bcryptCost int) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tokens, BcryptCost: bcryptCost}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) Validate() error { return validation.Struct(r) }

type registerRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Email    string `json:"email" validate:"omitempty,email,max=100"`
}

func (r *registerRequest) Validate() error { return validation.Struct(r) }

type loginResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// dummyHash is compared against when the username is unknown so both
// failure paths pay for one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("forum-dummy-password"), bcrypt.DefaultCost)
	return string(h)
})

var errInvalidCredentials = errs.NewUnauthorizedError("invalid credentials")

// Login checks username and password and issues a session token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(dummyHash(), req.Password)
		return errInvalidCredentials
	}
	if err != nil {
		return storeError(err, "")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		middleware.GetLogger(c).Warn().Int64("target_user_id", u.ID).Msg("login failed: bad password")
		return errInvalidCredentials
	}

	tok, err := h.Tokens.Issue(u.Identity())
	if err != nil {
		middleware.GetLogger(c).Error().Err(err).Msg("issue token failed")
		return errs.NewInternalServerError()
	}

	middleware.GetLogger(c).Info().Int64("target_user_id", u.ID).Msg("login succeeded")
	return c.JSON(http.StatusOK, loginResponse{
		Success:   true,
		Message:   "Login successful",
		User:      toUserResponse(u),
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
	})
}

// Register creates a regular user account.  The role is never taken from
// the request.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	hash, err := utils.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		return errs.NewBadRequestError(err.Error(), "", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u := model.User{Username: req.Username, PasswordHash: hash, Email: strings.TrimSpace(req.Email), Role: model.RoleUser}
	id, err := h.Users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return errs.NewConflictError("username already taken")
		}
		return storeError(err, "")
	}
	u.ID = id

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Registration successful",
		"user":    toUserResponse(u),
	})
}

// Me returns the identity carried by the caller's token.  It does not read
// the store, so it reflects the token as issued.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return errs.NewMissingTokenError()
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": id})
}
