package models

import "github.com/google/uuid"

type Media struct {
	BaseModel
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	MimeType    string    `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size        int64     `json:"size" gorm:"not null;default:0"`
	StoragePath string    `json:"storagePath" gorm:"type:text;not null"`
	UploadedBy  uuid.UUID `json:"uploadedBy" gorm:"type:uuid;not null;index"`

	Uploader User `json:"uploader,omitempty" gorm:"foreignKey:UploadedBy;references:ID"`
}

func (Media) TableName() string {
	return "media"
}
