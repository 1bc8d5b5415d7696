package entities

import (
	"strings"

	"github.com/aarondl/null/v8"

	"repair-desk/pkg/constants"
	"repair-desk/pkg/types"
)

// User - пользователь бота. ID совпадает с chat id в Telegram.
type User struct {
	ID         int64          `json:"id" db:"id"`
	FirstName  string         `json:"first_name" db:"first_name"`
	LastName   null.String    `json:"last_name" db:"last_name"`
	Username   null.String    `json:"username" db:"username"`
	Role       constants.Role `json:"role" db:"role"`
	IsApproved bool           `json:"is_approved" db:"is_approved"`

	types.BaseEntity
	types.SoftDelete
}

// DisplayName - "Иван Петров (@ivan)".
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName.String)
	if name == "" {
		name = "Пользователь"
	}
	if u.Username.Valid && u.Username.String != "" {
		name += " (@" + u.Username.String + ")"
	}
	return name
}

func (u *User) HasRole(roles ...constants.Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
