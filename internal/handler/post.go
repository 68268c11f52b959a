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
	"github.com/iliyamo/secure-forum/internal/validation"
)

// PostHandler serves the shared post feed.
type PostHandler struct {
	Posts  *repository.PostRepo
	Events EventPublisher
	// Purge drops cached feed responses after a write.  Optional.
	Purge func(ctx context.Context) error
}

func NewPostHandler(posts *repository.PostRepo, pub EventPublisher, purge func(context.Context) error) *PostHandler {
	return &PostHandler{Posts: posts, Events: pub, Purge: purge}
}

type createPostRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
}

func (r *createPostRequest) Validate() error { return validation.Struct(r) }

type searchRequest struct {
	Keyword string `query:"keyword" validate:"required,max=100"`
}

func (r *searchRequest) Validate() error { return validation.Struct(r) }

// List returns every post, newest first.
func (h *PostHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	posts, err := h.Posts.List(ctx)
	if err != nil {
		return storeError(err, "")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "posts": posts})
}

// Search matches the keyword literally against title and content.
func (h *PostHandler) Search(c echo.Context) error {
	var req searchRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	posts, err := h.Posts.Search(ctx, req.Keyword)
	if err != nil {
		return storeError(err, "")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "posts": posts})
}

// Create stores a post owned by the caller.  The owner always comes from the
// verified identity, never from the body.
func (h *PostHandler) Create(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return errs.NewMissingTokenError()
	}
	var req createPostRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	postID, err := h.Posts.Create(ctx, req.Title, req.Content, id.ID)
	if err != nil {
		return storeError(err, "")
	}

	if h.Purge != nil {
		if err := h.Purge(ctx); err != nil {
			middleware.GetLogger(c).Warn().Err(err).Msg("purge post cache failed")
		}
	}
	if h.Events != nil {
		ev := events.PostCreatedEvent{PostID: postID, UserID: id.ID, Username: id.Username, Title: req.Title, CreatedAt: time.Now().UTC()}
		publishAsync(c.Request().Context(), func(ctx context.Context) error { return h.Events.PostCreated(ctx, ev) })
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Post created successfully",
		"post_id": postID,
	})
}
