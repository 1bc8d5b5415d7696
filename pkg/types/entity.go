package types

import (
	"time"

	"github.com/aarondl/null/v8"
)

type BaseEntity struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type SoftDelete struct {
	DeletedAt null.Time `json:"deleted_at" db:"deleted_at"`
}

func (s SoftDelete) IsDeleted() bool {
	return s.DeletedAt.Valid
}
