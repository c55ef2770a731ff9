package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ekklesia/backend/internal/config"
	"github.com/ekklesia/backend/pkg/logger"
)

// SMSGateway sends text messages through the provider's HTTP API: a GET
// with credentials and the message in the query string. The provider has
// no documented response contract; delivery is considered successful on
// HTTP 200 or a body containing "OK" or "success".
type SMSGateway struct {
	Config     config.SMSConfig
	HTTPClient *http.Client
}

func NewSMSGateway(cfg config.SMSConfig) *SMSGateway {
	return &SMSGateway{
		Config: cfg,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NormalizePhone converts a raw phone number to the international form
// the gateway expects: digits only, no "+", and a leading trunk "0"
// replaced by the country code. Numbers already carrying the country
// code are left alone.
func NormalizePhone(raw, countryCode string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	number := digits.String()
	if strings.HasPrefix(number, "0") {
		return countryCode + number[1:]
	}
	return number
}

// Send delivers one message. A nil error means the gateway acknowledged
// the send under the success heuristic, nothing stronger.
func (g *SMSGateway) Send(ctx context.Context, phone, message string) error {
	if g.Config.GatewayURL == "" {
		return errors.New("sms gateway not configured")
	}

	destination := NormalizePhone(phone, g.Config.CountryCode)
	if destination == "" {
		return errors.New("empty destination number")
	}

	params := url.Values{}
	params.Set("api_id", g.Config.APIID)
	params.Set("api_password", g.Config.APIPassword)
	params.Set("sms_type", "T")
	params.Set("encoding", "T")
	params.Set("sender_id", g.Config.SenderID)
	params.Set("phonenumber", destination)
	params.Set("textmessage", message)

	requestURL := strings.TrimRight(g.Config.GatewayURL, "/") + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if !gatewayAccepted(resp.StatusCode, string(body)) {
		return fmt.Errorf("sms gateway rejected send: status=%d body=%q", resp.StatusCode, string(body))
	}

	logger.Info("sms_sent", map[string]interface{}{
		"destination": destination,
		"status":      resp.StatusCode,
	})
	return nil
}

func gatewayAccepted(status int, body string) bool {
	if status == http.StatusOK {
		return true
	}
	return strings.Contains(body, "OK") || strings.Contains(body, "success")
}
