package service

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
	"github.com/vibast-solutions/ms-go-payment-gateway/app/provider"
)

const envKeyRefPrefix = "env:"

type keyResolver interface {
	Resolve(ref string) (string, error)
}

// SecretResolver resolves signing_key_ref values. "env:NAME" reads the environment variable NAME;
// any other ref is looked up in the configured key map.
type SecretResolver struct {
	keys      map[string]string
	lookupEnv func(string) (string, bool)
}

func NewSecretResolver(keys map[string]string) *SecretResolver {
	if keys == nil {
		keys = map[string]string{}
	}
	return &SecretResolver{keys: keys, lookupEnv: os.LookupEnv}
}

func (r *SecretResolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty signing_key_ref", ErrSigningKeyMissing)
	}

	var key string
	if name, ok := strings.CutPrefix(ref, envKeyRefPrefix); ok {
		key, _ = r.lookupEnv(strings.TrimSpace(name))
	} else {
		key = r.keys[ref]
	}

	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: %s", ErrSigningKeyMissing, ref)
	}
	return key, nil
}

type GateInput struct {
	SourceIP        string
	Payload         []byte
	SignatureHeader string
	CallbackToken   string
}

type SecurityGate struct {
	resolver keyResolver
	logger   logrus.FieldLogger
}

func NewSecurityGate(resolver keyResolver, logger logrus.FieldLogger) *SecurityGate {
	return &SecurityGate{resolver: resolver, logger: logger}
}

// Check authenticates an inbound callback. On rejection it returns the check type to log against.
func (g *SecurityGate) Check(integration *entity.Integration, in GateInput) (entity.CheckType, error) {
	cfg := integration.WebhookConfig

	if len(cfg.IPAllowlist) == 0 {
		g.logger.WithField("provider_code", integration.ProviderCode).Warn("IP allowlist is empty, accepting callbacks from any source")
	} else if !ipAllowed(cfg.IPAllowlist, in.SourceIP) {
		return entity.CheckTypeConnectivity, fmt.Errorf("%w: %s", ErrSourceIPRejected, in.SourceIP)
	}

	key, err := g.resolver.Resolve(cfg.SigningKeyRef)
	if err != nil {
		return entity.CheckTypeAuth, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
	}

	var verified bool
	switch integration.Family {
	case entity.FamilyMpesaSTK, entity.FamilyMpesaC2B:
		verified = provider.VerifyCallbackToken(key, integration.ProviderCode, in.CallbackToken)
	default:
		verified = provider.VerifyPayloadSignature(key, in.Payload, in.SignatureHeader)
	}
	if !verified {
		return entity.CheckTypeAuth, ErrSignatureRejected
	}
	return "", nil
}

func ipAllowed(allowlist []string, sourceIP string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(sourceIP))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowlist {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		allowed, err := netip.ParseAddr(entry)
		if err == nil && allowed.Unmap() == addr {
			return true
		}
	}
	return false
}
