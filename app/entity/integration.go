package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ProviderFamily string

const (
	FamilyMpesaSTK ProviderFamily = "mpesa_stk"
	FamilyMpesaC2B ProviderFamily = "mpesa_c2b"
	FamilyBank     ProviderFamily = "bank"
)

func (f ProviderFamily) Valid() bool {
	switch f {
	case FamilyMpesaSTK, FamilyMpesaC2B, FamilyBank:
		return true
	default:
		return false
	}
}

// RequiresResultAck reports whether the family expects the resultCode/resultDescription acknowledgement body.
func (f ProviderFamily) RequiresResultAck() bool {
	return f == FamilyMpesaSTK || f == FamilyMpesaC2B
}

type HealthStatus string

const (
	HealthUnknown  HealthStatus = "unknown"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

const WebhookConfigVersion1 = 1

var ErrUnsupportedWebhookConfig = errors.New("unsupported webhook config version")

// WebhookConfig is the version 1 per-integration security record.
type WebhookConfig struct {
	Version       int      `json:"version"`
	IPAllowlist   []string `json:"ip_allowlist"`
	SigningKeyRef string   `json:"signing_key_ref"`
}

func ParseWebhookConfig(raw []byte) (WebhookConfig, error) {
	cfg := WebhookConfig{Version: WebhookConfigVersion1}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return WebhookConfig{}, err
	}
	if cfg.Version == 0 {
		cfg.Version = WebhookConfigVersion1
	}
	if cfg.Version != WebhookConfigVersion1 {
		return WebhookConfig{}, fmt.Errorf("%w: %d", ErrUnsupportedWebhookConfig, cfg.Version)
	}
	allowlist := make([]string, 0, len(cfg.IPAllowlist))
	for _, item := range cfg.IPAllowlist {
		if item = strings.TrimSpace(item); item != "" {
			allowlist = append(allowlist, item)
		}
	}
	cfg.IPAllowlist = allowlist
	cfg.SigningKeyRef = strings.TrimSpace(cfg.SigningKeyRef)
	return cfg, nil
}

func (c WebhookConfig) Marshal() (string, error) {
	if c.Version == 0 {
		c.Version = WebhookConfigVersion1
	}
	if c.IPAllowlist == nil {
		c.IPAllowlist = []string{}
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

type Integration struct {
	ID uint64

	ProviderCode string
	DisplayName  string
	Family       ProviderFamily
	IsActive     bool

	WebhookConfig WebhookConfig
	HealthStatus  HealthStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
