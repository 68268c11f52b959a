package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/secure-forum/internal/database"
	"github.com/iliyamo/secure-forum/internal/model"
)

// SeedUser is a demo account; its password is "<username>123".
type SeedUser struct {
	Username string
	Email    string
	Role     model.Role
}

type seedPost struct {
	Title, Content, Author string
}

var SeedUsers = []SeedUser{
	{"hilmy", "hilmy@forum.com", model.RoleAdmin},
	{"andi", "andi@example.com", model.RoleUser},
	{"dika", "dika@example.com", model.RoleUser},
	{"aliya", "aliya@nyoba.com", model.RoleUser},
	{"putri", "putri@contoh.com", model.RoleUser},
	{"reza", "reza@example.com", model.RoleUser},
}

var seedPosts = []seedPost{
	{"Selamat Datang di Forum Aman", "Forum ini sudah diamankan dari SQL Injection dan IDOR", "hilmy"},
	{"Tips Keamanan Web", "Selalu gunakan parameterized queries dan validasi input", "hilmy"},
	{"Belajar Cybersecurity", "Penting untuk memahami vulnerability sebelum mengamankannya", "andi"},
	{"Pengalaman Pertama", "Ini adalah post pertama saya di forum ini", "dika"},
	{"Diskusi Teknologi", "Mari diskusi tentang teknologi terbaru", "aliya"},
	{"Sharing Knowledge", "Berbagi ilmu adalah hal yang baik", "putri"},
	{"Project Baru", "Sedang mengerjakan project keamanan web", "reza"},
}

// Seed inserts the demo users and posts.  Users that already exist are kept
// as they are; posts are only inserted into an empty table.  hash turns a
// plaintext password into its stored digest.
func Seed(ctx context.Context, users *UserRepo, posts *PostRepo, hash func(string) (string, error)) error {
	for _, su := range SeedUsers {
		digest, err := hash(su.Username + "123")
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", su.Username, err)
		}
		_, err = users.Create(ctx, model.User{Username: su.Username, PasswordHash: digest, Email: su.Email, Role: su.Role})
		if err != nil && !errors.Is(err, database.ErrDuplicate) {
			return fmt.Errorf("seed user %s: %w", su.Username, err)
		}
	}

	n, err := posts.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, sp := range seedPosts {
		author, err := users.GetByUsername(ctx, sp.Author)
		if err != nil {
			return fmt.Errorf("seed post author %s: %w", sp.Author, err)
		}
		if _, err := posts.Create(ctx, sp.Title, sp.Content, author.ID); err != nil {
			return fmt.Errorf("seed post %q: %w", sp.Title, err)
		}
	}
	return nil
}
