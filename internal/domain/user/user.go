package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrTokenNotFound = errors.New("token not found")
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Phone        *string   `json:"phone"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	SuperUser    bool      `json:"super_user"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token is an opaque bearer credential owned by exactly one user.
type Token struct {
	ID       int64     `json:"-"`
	Value    string    `json:"token"`
	UserID   int64     `json:"-"`
	IssuedAt time.Time `json:"-"`
}

type RegisterRequest struct {
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=8,maxbytes=72"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	FirstName string  `json:"first_name" binding:"required,max=100"`
	LastName  string  `json:"last_name" binding:"required,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
