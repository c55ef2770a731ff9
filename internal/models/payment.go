package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodMobile PaymentMethod = "mobile_money"
	PaymentMethodBank   PaymentMethod = "bank"
)

type Payment struct {
	BaseModel
	ChildID      uuid.UUID     `json:"childID" gorm:"type:uuid;not null;index"`
	ActivityID   uuid.UUID     `json:"activityID" gorm:"type:uuid;not null;index"`
	Amount       float64       `json:"amount" gorm:"not null"`
	Method       PaymentMethod `json:"method" gorm:"type:varchar(20);not null;default:'cash'"`
	PaidAt       time.Time     `json:"paidAt" gorm:"not null"`
	RecordedByID uuid.UUID     `json:"recordedByID" gorm:"type:uuid;not null"`

	Child      Child    `json:"child,omitempty" gorm:"foreignKey:ChildID;references:ID"`
	Activity   Activity `json:"activity,omitempty" gorm:"foreignKey:ActivityID;references:ID"`
	RecordedBy User     `json:"recordedBy,omitempty" gorm:"foreignKey:RecordedByID;references:ID"`
}

func (Payment) TableName() string {
	return "payments"
}
