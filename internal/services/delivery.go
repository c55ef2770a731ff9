package services

import (
	"context"
	"fmt"

	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/pkg/logger"
)

// SMSSender is the slice of the gateway the dispatcher needs.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// DeliveryDispatcher routes a plaintext code to a user over the requested
// channel. Delivery failure is logged and reported as a boolean, never
// raised: the issued challenge stays verifiable regardless, so an
// operator can resend over the other channel.
type DeliveryDispatcher struct {
	Mailer Mailer
	SMS    SMSSender
}

func NewDeliveryDispatcher(mailer Mailer, sms SMSSender) *DeliveryDispatcher {
	return &DeliveryDispatcher{Mailer: mailer, SMS: sms}
}

// Deliver returns true when the channel acknowledged the send.
func (d *DeliveryDispatcher) Deliver(ctx context.Context, user *models.User, channel models.TwoFactorChannel, code string) bool {
	var err error

	switch channel {
	case models.TwoFactorChannelSMS:
		if user.Phone == "" {
			err = fmt.Errorf("user has no phone number")
			break
		}
		message := fmt.Sprintf("Your login code is %s. It expires in 10 minutes.", code)
		err = d.SMS.Send(ctx, user.Phone, message)
	case models.TwoFactorChannelEmail:
		err = d.Mailer.SendCode(ctx, user.Email, code)
	default:
		err = fmt.Errorf("unknown channel %q", channel)
	}

	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "two_factor_delivery_failed", err, map[string]interface{}{
			"channel": string(channel),
		})
		return false
	}

	logger.InfoWithUser(user.ID.String(), "two_factor_code_delivered", map[string]interface{}{
		"channel": string(channel),
	})
	return true
}
