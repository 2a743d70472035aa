// Package rooms issues meeting tokens and creates and validates rooms against
// the meeting provider's REST API.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var ErrNotConfigured = errors.New("meeting provider not configured")

type Provider struct {
	cfg    config.Meeting
	client *http.Client
	now    func() time.Time
}

func New(cfg config.Meeting) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// GetToken signs a short lived HS256 token that lets its bearer join rooms.
func (p *Provider) GetToken(context.Context) (string, error) {
	if p.cfg.APIKey == "" || p.cfg.Secret == "" {
		return "", ErrNotConfigured
	}
	now := p.now()
	claims := jwt.MapClaims{
		"apikey":      p.cfg.APIKey,
		"permissions": []string{"allow_join"},
		"version":     2,
		"iat":         now.Unix(),
		"exp":         now.Add(p.cfg.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(p.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type roomResponse struct {
	RoomID   string `json:"roomId"`
	Disabled bool   `json:"disabled"`
}

func (p *Provider) CreateRoom(ctx context.Context, token string) (domain.MeetingID, error) {
	var room roomResponse
	status, err := p.do(ctx, http.MethodPost, "/v2/rooms", token, &room)
	if err != nil {
		return "", fmt.Errorf("create room: %w: %w", domain.ErrTransport, err)
	}
	if status != http.StatusOK && status != http.StatusCreated || room.RoomID == "" {
		return "", fmt.Errorf("create room: status %d: %w", status, domain.ErrTransport)
	}
	log.Info().Str("module", "rooms").Str("room", room.RoomID).Msg("room created")
	return domain.MeetingID(room.RoomID), nil
}

// ValidateRoom resolves id to the canonical room id. Unknown rooms yield
// ErrRoomInvalid and disabled ones ErrRoomExpired.
func (p *Provider) ValidateRoom(ctx context.Context, id domain.MeetingID, token string) (domain.MeetingID, error) {
	trimmed := strings.TrimSpace(string(id))
	if trimmed == "" {
		return "", fmt.Errorf("empty meeting id: %w", domain.ErrRoomInvalid)
	}
	var room roomResponse
	status, err := p.do(ctx, http.MethodGet, "/v2/rooms/validate/"+url.PathEscape(trimmed), token, &room)
	if err != nil {
		return "", fmt.Errorf("validate room %s: %w: %w", trimmed, domain.ErrTransport, err)
	}
	switch {
	case status == http.StatusOK && room.Disabled:
		return "", fmt.Errorf("room %s: %w", trimmed, domain.ErrRoomExpired)
	case status == http.StatusOK && room.RoomID != "":
		return domain.MeetingID(room.RoomID), nil
	case status == http.StatusGone:
		return "", fmt.Errorf("room %s: %w", trimmed, domain.ErrRoomExpired)
	case status == http.StatusOK, status == http.StatusNotFound, status == http.StatusBadRequest:
		return "", fmt.Errorf("room %s: %w", trimmed, domain.ErrRoomInvalid)
	}
	return "", fmt.Errorf("validate room %s: status %d: %w", trimmed, status, domain.ErrTransport)
}

// do sends the request and decodes a JSON body into out when the status is 2xx.
func (p *Provider) do(ctx context.Context, method, path, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.cfg.Endpoint, "/")+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		log.Warn().Str("module", "rooms").Str("path", path).Int("status", resp.StatusCode).Msg("provider rejected request")
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
