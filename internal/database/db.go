package database

import (
	"context"
	"database/sql"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// PoolConfig carries the connection and pool settings for Open.
type PoolConfig struct {
	User, Pass, Host, Port, Name string
	MaxOpenConns                 int
}

// Open connects to MySQL and verifies the connection.  The pool is bounded by
// MaxOpenConns; callers borrow from it through an Executor.
func Open(pc PoolConfig) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = pc.User
	mc.Passwd = pc.Pass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(pc.Host, pc.Port)
	mc.DBName = pc.Name
	// DATETIME/TIMESTAMP -> time.Time, kept in UTC
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	maxOpen := pc.MaxOpenConns
	if maxOpen < 1 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
