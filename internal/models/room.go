package models

type Room struct {
	BaseModel
	Name     string `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	AgeMin   int    `json:"ageMin" gorm:"not null;default:0"`
	AgeMax   int    `json:"ageMax" gorm:"not null;default:0"`
	Capacity int    `json:"capacity" gorm:"not null;default:0"`

	Children []Child   `json:"children,omitempty" gorm:"foreignKey:RoomID"`
	Monitors []Monitor `json:"monitors,omitempty" gorm:"foreignKey:RoomID"`
}

func (Room) TableName() string {
	return "rooms"
}
