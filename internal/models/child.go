package models

import (
	"time"

	"github.com/google/uuid"
)

type Child struct {
	BaseModel
	FirstName     string     `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName      string     `json:"lastName" gorm:"type:varchar(100);not null"`
	BirthDate     *time.Time `json:"birthDate,omitempty"`
	Gender        string     `json:"gender" gorm:"type:varchar(10)"`
	GuardianName  string     `json:"guardianName" gorm:"type:varchar(200)"`
	GuardianPhone string     `json:"guardianPhone" gorm:"type:varchar(30)"`
	RoomID        *uuid.UUID `json:"roomID,omitempty" gorm:"type:uuid;index"`

	Room *Room `json:"room,omitempty" gorm:"foreignKey:RoomID"`
}

func (Child) TableName() string {
	return "children"
}
