package repository

import (
	"context"

	"github.com/iliyamo/secure-forum/internal/database"
	"github.com/iliyamo/secure-forum/internal/model"
)

const userColumns = "id, username, password, email, role, created_at"

// UserRepo reads and writes the users table.
type UserRepo struct{ exec Executor }

func NewUserRepo(exec Executor) *UserRepo { return &UserRepo{exec: exec} }

// GetByUsername is the login lookup.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.one(ctx, "SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", username)
}

// GetByID fetches a user by primary key.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (model.User, error) {
	return r.one(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
}

// List returns every user ordered by id.  The password column is not selected.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	res, err := r.exec.Execute(ctx, "SELECT id, username, role, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, userFromRow(row))
	}
	return out, nil
}

// Create inserts a user and returns its id.  A taken username surfaces as
// database.ErrDuplicate inside the returned error.
func (r *UserRepo) Create(ctx context.Context, u model.User) (int64, error) {
	res, err := r.exec.Execute(ctx,
		"INSERT INTO users (username, password, email, role) VALUES (?, ?, ?, ?)",
		u.Username, u.PasswordHash, nullable(u.Email), string(u.Role))
	if err != nil {
		return 0, err
	}
	return *res.InsertedID, nil
}

// UpdateProfile sets the email and, when passwordHash is non-empty, the
// password, then reads the row back.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, email, passwordHash string) (model.User, error) {
	var err error
	if passwordHash != "" {
		_, err = r.exec.Execute(ctx, "UPDATE users SET email = ?, password = ? WHERE id = ?", email, passwordHash, id)
	} else {
		_, err = r.exec.Execute(ctx, "UPDATE users SET email = ? WHERE id = ?", email, id)
	}
	if err != nil {
		return model.User{}, err
	}
	// MySQL reports 0 affected rows when nothing changed, so existence is
	// decided by the read-back.
	return r.GetByID(ctx, id)
}

func (r *UserRepo) one(ctx context.Context, stmt string, args ...any) (model.User, error) {
	res, err := r.exec.Execute(ctx, stmt, args...)
	if err != nil {
		return model.User{}, err
	}
	if len(res.Rows) == 0 {
		return model.User{}, ErrNotFound
	}
	return userFromRow(res.Rows[0]), nil
}

func userFromRow(row database.Row) model.User {
	role, ok := model.ParseRole(asString(row["role"]))
	if !ok {
		role = model.RoleUser
	}
	return model.User{
		ID:           asInt64(row["id"]),
		Username:     asString(row["username"]),
		PasswordHash: asString(row["password"]),
		Email:        asString(row["email"]),
		Role:         role,
		CreatedAt:    asTime(row["created_at"]),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
