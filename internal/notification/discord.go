package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

const (
	colorRed    = 0xff0000
	colorOrange = 0xffa500
)

// DiscordService implements NotificationService for Discord webhooks
type DiscordService struct {
	log        zerolog.Logger
	webhookURL string
	httpClient *http.Client
}

// NewDiscordService creates a new Discord notification service
func NewDiscordService(log zerolog.Logger, webhookURL string) *DiscordService {
	return &DiscordService{
		log:        log.With().Str("module", "notification").Str("type", "discord").Logger(),
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendIntegrityReport sends the problems found by an integrity check
func (s *DiscordService) SendIntegrityReport(ctx context.Context, report domain.IntegrityReport) error {
	if s.webhookURL == "" {
		return nil
	}

	embed := discordEmbed{
		Title:       "BibleStore Integrity Check Failed",
		Description: fmt.Sprintf("Problems found:\n```%s```", strings.Join(report.Problems, "\n")),
		Color:       colorRed,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      reportFields(report),
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

// SendRecovery sends a notice that the database was reset to the bundled dataset
func (s *DiscordService) SendRecovery(ctx context.Context, report domain.IntegrityReport) error {
	if s.webhookURL == "" {
		return nil
	}

	embed := discordEmbed{
		Title:       "BibleStore Database Reset",
		Description: "The database failed its integrity check and was reset to the bundled dataset. User content was discarded.",
		Color:       colorOrange,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      reportFields(report),
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

// SendError sends an error notification with error details
func (s *DiscordService) SendError(ctx context.Context, err error) error {
	if s.webhookURL == "" {
		return nil
	}

	embed := discordEmbed{
		Title:       "BibleStore Error",
		Description: fmt.Sprintf("Operation failed with error:\n```%s```", err.Error()),
		Color:       colorRed,
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

func reportFields(report domain.IntegrityReport) []discordField {
	return []discordField{
		{
			Name:   "Database",
			Value:  report.DatabasePath,
			Inline: false,
		},
		{
			Name:   "Verses",
			Value:  fmt.Sprintf("%d", report.VerseCount),
			Inline: true,
		},
	}
}

// sendWebhook sends a webhook payload to Discord
func (s *DiscordService) sendWebhook(ctx context.Context, payload discordWebhook) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	s.log.Debug().Msg("Discord notification sent successfully")
	return nil
}

type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}
