// Package alerts sends operator notifications through Telegram for events
// the ingestion engine cannot resolve on its own.
package alerts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"parcelwatch/server/config"
	"parcelwatch/server/internal/models"
)

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	enabled bool
	token   string
	chatID  string
}

func NewService(cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		logger:  logger,
		enabled: cfg.Alerts.Enabled,
		token:   cfg.Alerts.BotToken,
		chatID:  cfg.Alerts.ChatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendMessage sends a message to the configured Telegram chat
func (s *Service) SendMessage(message string) error {
	if !s.enabled {
		return nil
	}

	if s.token == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.chatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.token)
	payload := map[string]interface{}{
		"chat_id":    s.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// BindingConflict notifies the operator that a source listing moved between
// properties and is held in the reconciliation queue.
func (s *Service) BindingConflict(conflict models.BindingConflict) {
	message := fmt.Sprintf(
		"<b>⚠️ Listing Binding Conflict</b>\n\n"+
			"📰 Source: %s\n"+
			"🔖 Listing: %s\n"+
			"🏠 Bound to property: %d\n"+
			"🏚️ Observation resolved to: %s\n\n"+
			"The observation was held for manual reconciliation.",
		conflict.SourceName,
		conflict.SourceListingID,
		conflict.BoundPropertyID,
		conflict.AttemptedAddress,
	)
	if err := s.SendMessage(message); err != nil {
		s.logger.WithError(err).Error("Failed to send binding conflict alert")
	}
}

// InvariantViolation notifies the operator that a property's history chain
// failed verification and its ingestion was halted.
func (s *Service) InvariantViolation(propertyID int64, detail string) {
	message := fmt.Sprintf(
		"<b>🚨 History Invariant Violation</b>\n\n"+
			"🏠 Property: %d\n"+
			"📋 %s\n\n"+
			"Ingestion for this property was halted.",
		propertyID,
		detail,
	)
	if err := s.SendMessage(message); err != nil {
		s.logger.WithError(err).Error("Failed to send invariant violation alert")
	}
}
