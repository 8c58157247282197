package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleDirectivo Role = "directivo" // executive with a dedicated spot
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser || r == RoleDirectivo
}

type Profile struct {
	ID           int         `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"` // never returned in JSON
	FullName     null.String `json:"full_name"`
	Role         Role        `json:"role"`
	IsVerified   bool        `json:"is_verified"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type RegisterProfileDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=100"`
	FullName string `json:"full_name,omitempty"`
}

type LoginDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token      string `json:"token"`
	UserID     int    `json:"user_id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

type ChangeRoleDTO struct {
	Role Role `json:"role" binding:"required"`
}
