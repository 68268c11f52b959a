package model

import "time"

// User represents a row of the `users` table.  PasswordHash holds the bcrypt
// digest and never leaves the repository/handler boundary in a response.
type User struct {
	ID           int64     // users.id
	Username     string    // users.username (unique)
	PasswordHash string    // users.password
	Email        string    // users.email (nullable, empty when unset)
	Role         Role      // users.role
	CreatedAt    time.Time // users.created_at
}

// Identity returns the projection of the user that is embedded in a session
// token at login time.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}

// Post represents a row of the `posts` table joined with the author's username.
type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
