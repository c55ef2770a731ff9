package models

import (
	"time"

	"github.com/google/uuid"
)

type CashFlow string

const (
	CashFlowIn  CashFlow = "inflow"
	CashFlowOut CashFlow = "outflow"
)

// CashTransaction is one caisse movement. Amounts are always positive;
// direction is carried by Flow.
type CashTransaction struct {
	BaseModel
	Flow         CashFlow  `json:"flow" gorm:"type:varchar(10);not null;index"`
	Category     string    `json:"category" gorm:"type:varchar(100);not null;index"`
	Label        string    `json:"label" gorm:"type:varchar(255);not null"`
	Amount       float64   `json:"amount" gorm:"not null"`
	Date         time.Time `json:"date" gorm:"not null;index"`
	RecordedByID uuid.UUID `json:"recordedByID" gorm:"type:uuid;not null"`

	RecordedBy User `json:"recordedBy,omitempty" gorm:"foreignKey:RecordedByID;references:ID"`
}

func (CashTransaction) TableName() string {
	return "cash_transactions"
}
