package provision

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrUnavailable means transport credentials are not configured.
	ErrUnavailable = errors.New("provisioning unavailable")
	ErrFailed      = errors.New("provisioning failed")

	// ErrInvalidIdentity rejects a blank trainee identity before signing.
	ErrInvalidIdentity = errors.New("trainee identity is required")
)

const (
	DefaultTTL    = time.Hour
	DefaultPrefix = "drill"
)

type Config struct {
	APIKey     string
	APISecret  string
	URL        string
	RoomPrefix string
	TTL        time.Duration
}

// Connection is what a trainee client needs to join its room.
type Connection struct {
	Credential   string    `json:"credential"`
	RoomName     string    `json:"room_name"`
	TransportURL string    `json:"transport_url"`
	Identity     string    `json:"identity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VideoGrant follows the media server's access-token grant layout. Only the
// microphone may be published.
type VideoGrant struct {
	RoomJoin          bool     `json:"roomJoin"`
	Room              string   `json:"room"`
	CanPublish        bool     `json:"canPublish"`
	CanSubscribe      bool     `json:"canSubscribe"`
	CanPublishData    bool     `json:"canPublishData"`
	CanPublishSources []string `json:"canPublishSources,omitempty"`
}

type Claims struct {
	jwt.RegisteredClaims
	Name     string      `json:"name,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
}

type Provisioner struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	entropy io.Reader
}

func New(cfg Config, logger *slog.Logger) *Provisioner {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RoomPrefix == "" {
		cfg.RoomPrefix = DefaultPrefix
	}
	return &Provisioner{cfg: cfg, logger: logger, now: time.Now, entropy: rand.Reader}
}

// Configured reports whether credentials can be issued at all.
func (p *Provisioner) Configured() bool {
	return p.cfg.APIKey != "" && p.cfg.APISecret != "" && p.cfg.URL != ""
}

func (p *Provisioner) TransportURL() string { return p.cfg.URL }

// Provision creates a unique room name and a credential that lets
// traineeID join only that room. It is never retried.
func (p *Provisioner) Provision(ctx context.Context, traineeID, scenarioID string) (Connection, error) {
	if !p.Configured() {
		return Connection{}, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return Connection{}, fmt.Errorf("%w: %w", ErrFailed, err)
	}
	if strings.TrimSpace(traineeID) == "" {
		return Connection{}, ErrInvalidIdentity
	}

	now := p.now().UTC()
	room, err := p.roomName(now)
	if err != nil {
		return Connection{}, fmt.Errorf("%w: room name: %w", ErrFailed, err)
	}

	metadata, err := json.Marshal(map[string]string{"scenarioId": scenarioID})
	if err != nil {
		return Connection{}, fmt.Errorf("%w: metadata: %w", ErrFailed, err)
	}

	expires := now.Add(p.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.APIKey,
			Subject:   traineeID,
			ID:        room + ":" + traineeID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name: traineeID,
		Video: &VideoGrant{
			RoomJoin:          true,
			Room:              room,
			CanPublish:        true,
			CanSubscribe:      true,
			CanPublishSources: []string{"microphone"},
		},
		Metadata: string(metadata),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.APISecret))
	if err != nil {
		return Connection{}, fmt.Errorf("%w: sign token: %w", ErrFailed, err)
	}

	p.logger.Info("room provisioned", "room", room, "identity", traineeID, "scenario_id", scenarioID)

	return Connection{
		Credential:   token,
		RoomName:     room,
		TransportURL: p.cfg.URL,
		Identity:     traineeID,
		ExpiresAt:    expires,
	}, nil
}

func (p *Provisioner) roomName(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), p.entropy)
	if err != nil {
		return "", err
	}
	return p.cfg.RoomPrefix + "-" + strings.ToLower(id.String()), nil
}

// ParseCredential verifies a credential issued by this provisioner.
func (p *Provisioner) ParseCredential(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(p.cfg.APISecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(p.cfg.APIKey), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}
	return claims, nil
}
