package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/biblestore/internal/domain"
)

func newWebhookServer(t *testing.T, status int) (*httptest.Server, <-chan discordWebhook) {
	t.Helper()

	received := make(chan discordWebhook, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload discordWebhook
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload)) {
			received <- payload
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, received
}

func TestDiscordService_SendIntegrityReport(t *testing.T) {
	srv, received := newWebhookServer(t, http.StatusNoContent)
	svc := NewDiscordService(zerolog.Nop(), srv.URL)

	report := domain.IntegrityReport{
		DatabasePath: "/data/BibleStudy.sqlite",
		Problems:     []string{"verses table is empty"},
	}
	require.NoError(t, svc.SendIntegrityReport(context.Background(), report))

	payload := <-received
	require.Len(t, payload.Embeds, 1)
	embed := payload.Embeds[0]
	assert.Equal(t, "BibleStore Integrity Check Failed", embed.Title)
	assert.Contains(t, embed.Description, "verses table is empty")
	assert.Equal(t, colorRed, embed.Color)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "/data/BibleStudy.sqlite", embed.Fields[0].Value)
	assert.Equal(t, "0", embed.Fields[1].Value)
}

func TestDiscordService_SendRecovery(t *testing.T) {
	srv, received := newWebhookServer(t, http.StatusOK)
	svc := NewDiscordService(zerolog.Nop(), srv.URL)

	require.NoError(t, svc.SendRecovery(context.Background(), domain.IntegrityReport{VerseCount: 31102}))

	payload := <-received
	assert.Equal(t, "BibleStore Database Reset", payload.Embeds[0].Title)
	assert.Equal(t, colorOrange, payload.Embeds[0].Color)
	assert.Equal(t, "31102", payload.Embeds[0].Fields[1].Value)
}

func TestDiscordService_Non2xx(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusTooManyRequests)
	svc := NewDiscordService(zerolog.Nop(), srv.URL)

	err := svc.SendError(context.Background(), errors.New("migration failed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestService_NoWebhookIsNoop(t *testing.T) {
	svc := NewService(zerolog.Nop(), "")
	ctx := context.Background()

	assert.NoError(t, svc.SendError(ctx, errors.New("boom")))
	assert.NoError(t, svc.SendIntegrityReport(ctx, domain.IntegrityReport{Problems: []string{"x"}}))
	assert.NoError(t, svc.SendRecovery(ctx, domain.IntegrityReport{}))
}

func TestService_ForwardsToDiscord(t *testing.T) {
	srv, received := newWebhookServer(t, http.StatusNoContent)
	svc := NewService(zerolog.Nop(), srv.URL)

	require.NoError(t, svc.SendError(context.Background(), errors.New("disk full")))

	payload := <-received
	assert.Contains(t, payload.Embeds[0].Description, "disk full")
}
