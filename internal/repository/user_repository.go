package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/hoangvu/cinema-booking/internal/utils"
)

// User mirrors the 'users' table.
type User struct {
    ID           uint64
    Email        string
    PasswordHash string
    IsActive     bool
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create inserts a user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password string, cost int) (uint64, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    res, err := r.DB.ExecContext(ctx,
        "INSERT INTO users (email, password_hash) VALUES (?,?)",
        email, hash)
    if err != nil {
        if strings.Contains(strings.ToLower(err.Error()), "1062") {
            return 0, ErrEmailExists
        }
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    var u User
    err := r.DB.QueryRowContext(ctx,
        "SELECT id,email,password_hash,is_active,created_at,updated_at FROM users WHERE email=? LIMIT 1",
        email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
    return u, err
}

// Exists reports whether an active user row with the id is present.
// Reconciliation uses this to decide between a customer booking and an
// anonymous one when the session owner has since been removed.
func (r *UserRepo) Exists(ctx context.Context, id uint64) (bool, error) {
    var one int
    err := r.DB.QueryRowContext(ctx,
        "SELECT 1 FROM users WHERE id=? AND is_active=1 LIMIT 1", id).Scan(&one)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}
