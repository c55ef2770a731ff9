package models

import (
	"time"

	"github.com/google/uuid"
)

type Activity struct {
	BaseModel
	Title       string     `json:"title" gorm:"type:varchar(200);not null"`
	Description string     `json:"description" gorm:"type:text"`
	Date        time.Time  `json:"date" gorm:"not null;index"`
	Location    string     `json:"location" gorm:"type:varchar(200)"`
	RoomID      *uuid.UUID `json:"roomID,omitempty" gorm:"type:uuid;index"`
	FeeAmount   *float64   `json:"feeAmount,omitempty"`
	CreatedByID uuid.UUID  `json:"createdByID" gorm:"type:uuid;not null"`

	Room      *Room      `json:"room,omitempty" gorm:"foreignKey:RoomID"`
	CreatedBy User       `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID;references:ID"`
	Payments  []Payment  `json:"-" gorm:"foreignKey:ActivityID"`
	Presences []Presence `json:"-" gorm:"foreignKey:ActivityID"`
}

func (Activity) TableName() string {
	return "activities"
}
