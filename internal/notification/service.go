package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/varoOP/biblestore/internal/domain"
)

// Service fans notifications out to every configured channel.
type Service struct {
	discord *DiscordService
}

// NewService creates a new notification service
func NewService(log zerolog.Logger, webhookURL string) domain.NotificationService {
	var discord *DiscordService
	if webhookURL != "" {
		discord = NewDiscordService(log, webhookURL)
	}

	return &Service{
		discord: discord,
	}
}

func (s *Service) SendIntegrityReport(ctx context.Context, report domain.IntegrityReport) error {
	if s.discord != nil {
		return s.discord.SendIntegrityReport(ctx, report)
	}
	return nil
}

func (s *Service) SendRecovery(ctx context.Context, report domain.IntegrityReport) error {
	if s.discord != nil {
		return s.discord.SendRecovery(ctx, report)
	}
	return nil
}

func (s *Service) SendError(ctx context.Context, err error) error {
	if s.discord != nil {
		return s.discord.SendError(ctx, err)
	}
	return nil
}
