package models

import (
	"time"

	"github.com/google/uuid"
)

type Post struct {
	BaseModel
	Title        string     `json:"title" gorm:"type:varchar(255);not null"`
	Slug         string     `json:"slug" gorm:"type:varchar(255);uniqueIndex;not null"`
	Body         string     `json:"body" gorm:"type:text;not null"`
	Published    bool       `json:"published" gorm:"not null;default:false;index"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	AuthorID     uuid.UUID  `json:"authorID" gorm:"type:uuid;not null;index"`
	CoverMediaID *uuid.UUID `json:"coverMediaID,omitempty" gorm:"type:uuid"`

	Author     User   `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID"`
	CoverMedia *Media `json:"coverMedia,omitempty" gorm:"foreignKey:CoverMediaID;references:ID"`
}

func (Post) TableName() string {
	return "posts"
}
