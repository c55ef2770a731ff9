package models

import (
	"time"

	"github.com/google/uuid"
)

type WorshipReport struct {
	BaseModel
	ServiceDate   time.Time `json:"serviceDate" gorm:"not null;index"`
	Preacher      string    `json:"preacher" gorm:"type:varchar(200);not null"`
	Theme         string    `json:"theme" gorm:"type:varchar(255)"`
	MenCount      int       `json:"menCount" gorm:"not null;default:0"`
	WomenCount    int       `json:"womenCount" gorm:"not null;default:0"`
	ChildrenCount int       `json:"childrenCount" gorm:"not null;default:0"`
	Offering      float64   `json:"offering" gorm:"not null;default:0"`
	Notes         string    `json:"notes" gorm:"type:text"`
	ReportedByID  uuid.UUID `json:"reportedByID" gorm:"type:uuid;not null"`

	ReportedBy User `json:"reportedBy,omitempty" gorm:"foreignKey:ReportedByID;references:ID"`
}

func (WorshipReport) TableName() string {
	return "worship_reports"
}

// TotalAttendance is the sum of the three headcounts.
func (w *WorshipReport) TotalAttendance() int {
	return w.MenCount + w.WomenCount + w.ChildrenCount
}
