package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/secure-forum/internal/database"
	"github.com/iliyamo/secure-forum/internal/model"
)

const postSelect = `SELECT p.id, p.title, p.content, p.user_id, p.created_at, p.updated_at, u.username
	FROM posts p
	JOIN users u ON p.user_id = u.id`

// PostRepo reads and writes the posts table.
type PostRepo struct{ exec Executor }

func NewPostRepo(exec Executor) *PostRepo { return &PostRepo{exec: exec} }

// List returns all posts, newest first.
func (r *PostRepo) List(ctx context.Context) ([]model.Post, error) {
	return r.many(ctx, postSelect+" ORDER BY p.created_at DESC, p.id DESC")
}

// Search matches keyword literally against title or content.  LIKE
// wildcards in the keyword are escaped so "%" finds a percent sign.
func (r *PostRepo) Search(ctx context.Context, keyword string) ([]model.Post, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	return r.many(ctx,
		postSelect+" WHERE p.title LIKE ? ESCAPE '!' OR p.content LIKE ? ESCAPE '!' ORDER BY p.created_at DESC, p.id DESC",
		pattern, pattern)
}

// Create inserts a post owned by userID and returns its id.
func (r *PostRepo) Create(ctx context.Context, title, content string, userID int64) (int64, error) {
	res, err := r.exec.Execute(ctx,
		"INSERT INTO posts (title, content, user_id) VALUES (?, ?, ?)",
		title, content, userID)
	if err != nil {
		return 0, err
	}
	return *res.InsertedID, nil
}

// Count returns the number of posts.
func (r *PostRepo) Count(ctx context.Context) (int64, error) {
	res, err := r.exec.Execute(ctx, "SELECT COUNT(*) AS n FROM posts")
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	return asInt64(res.Rows[0]["n"]), nil
}

func (r *PostRepo) many(ctx context.Context, stmt string, args ...any) ([]model.Post, error) {
	res, err := r.exec.Execute(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Post, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, postFromRow(row))
	}
	return out, nil
}

func postFromRow(row database.Row) model.Post {
	return model.Post{
		ID:        asInt64(row["id"]),
		Title:     asString(row["title"]),
		Content:   asString(row["content"]),
		UserID:    asInt64(row["user_id"]),
		Username:  asString(row["username"]),
		CreatedAt: asTime(row["created_at"]),
		UpdatedAt: asTime(row["updated_at"]),
	}
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
