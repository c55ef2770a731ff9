package models

import "github.com/google/uuid"

type Monitor struct {
	BaseModel
	FirstName string     `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName  string     `json:"lastName" gorm:"type:varchar(100);not null"`
	Phone     string     `json:"phone" gorm:"type:varchar(30)"`
	Email     string     `json:"email" gorm:"type:varchar(255)"`
	RoomID    *uuid.UUID `json:"roomID,omitempty" gorm:"type:uuid;index"`
	IsActive  bool       `json:"isActive" gorm:"not null;default:true;index"`

	Room *Room `json:"room,omitempty" gorm:"foreignKey:RoomID"`
}

func (Monitor) TableName() string {
	return "monitors"
}
