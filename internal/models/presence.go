package models

import (
	"time"

	"github.com/google/uuid"
)

// Presence is one attendance mark for a child, either at an activity or
// at a dated service when ActivityID is null.
type Presence struct {
	BaseModel
	ChildID    uuid.UUID  `json:"childID" gorm:"type:uuid;not null;index"`
	ActivityID *uuid.UUID `json:"activityID,omitempty" gorm:"type:uuid;index"`
	Date       time.Time  `json:"date" gorm:"not null;index"`
	Present    bool       `json:"present" gorm:"not null;default:true"`
	NotedByID  uuid.UUID  `json:"notedByID" gorm:"type:uuid;not null"`

	Child    Child     `json:"child,omitempty" gorm:"foreignKey:ChildID;references:ID"`
	Activity *Activity `json:"activity,omitempty" gorm:"foreignKey:ActivityID;references:ID"`
	NotedBy  User      `json:"notedBy,omitempty" gorm:"foreignKey:NotedByID;references:ID"`
}

func (Presence) TableName() string {
	return "presences"
}
