package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrTokenUnavailable  = errors.New("provider access token unavailable")
	ErrPushNotConfigured = errors.New("push provider is not configured")
	ErrInvalidPushAmount = errors.New("push amount must be a positive whole number")

	tracer = otel.Tracer("gateway.provider")
)

// RejectedError is a synchronous provider refusal of a push request.
type RejectedError struct {
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected push: code=%s description=%s", e.Code, e.Description)
}

type MpesaPushConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	TransactionType string
	HTTPTimeout     time.Duration
	TokenAttempts   int
}

type MpesaPushProvider struct {
	cfg    MpesaPushConfig
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

func NewMpesaPushProvider(cfg MpesaPushConfig) *MpesaPushProvider {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.TokenAttempts <= 0 {
		cfg.TokenAttempts = 3
	}
	if strings.TrimSpace(cfg.TransactionType) == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &MpesaPushProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		now:    time.Now,
	}
}

func (p *MpesaPushProvider) InitiatePush(ctx context.Context, input *PushInput) (*PushOutput, error) {
	ctx, span := tracer.Start(ctx, "Initiating provider push")
	defer span.End()

	if p.cfg.BaseURL == "" || p.cfg.ShortCode == "" || p.cfg.PassKey == "" {
		return nil, ErrPushNotConfigured
	}
	if !input.Amount.IsPositive() || !input.Amount.IsInteger() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPushAmount, input.Amount.String())
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token")
		return nil, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}

	timestamp := p.now().In(eastAfricaTime).Format(compactTimestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(p.cfg.ShortCode + p.cfg.PassKey + timestamp))

	requestBody := map[string]interface{}{
		"BusinessShortCode": p.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   p.cfg.TransactionType,
		"Amount":            input.Amount.IntPart(),
		"PartyA":            input.PhoneNumber,
		"PartyB":            p.cfg.ShortCode,
		"PhoneNumber":       input.PhoneNumber,
		"CallBackURL":       input.CallbackURL,
		"AccountReference":  input.AccountReference,
		"TransactionDesc":   input.TransactionDesc,
	}
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("push request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
		ErrorCode           string `json:"errorCode"`
		ErrorMessage        string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("push response is not valid json: status=%d body=%s", resp.StatusCode, string(body))
	}

	if resp.StatusCode >= 400 || payload.ErrorCode != "" {
		return nil, &RejectedError{Code: payload.ErrorCode, Description: firstNonEmpty(payload.ErrorMessage, http.StatusText(resp.StatusCode))}
	}
	if payload.ResponseCode != "0" || strings.TrimSpace(payload.CheckoutRequestID) == "" {
		return nil, &RejectedError{Code: payload.ResponseCode, Description: firstNonEmpty(payload.ResponseDescription, "push request was not accepted")}
	}

	return &PushOutput{
		CorrelationID:       strings.TrimSpace(payload.CheckoutRequestID),
		MerchantRequestID:   payload.MerchantRequestID,
		ResponseDescription: payload.ResponseDescription,
		CustomerMessage:     payload.CustomerMessage,
	}, nil
}

// accessToken returns a cached OAuth token or fetches one with bounded exponential backoff.
// Client errors from the token endpoint are not retried.
func (p *MpesaPushProvider) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.cfg.TokenAttempts-1)), ctx)

	type tokenResponse struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}

	result, err := backoff.RetryWithData(func() (tokenResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
		if err != nil {
			return tokenResponse{}, backoff.Permanent(err)
		}
		req.SetBasicAuth(p.cfg.ConsumerKey, p.cfg.ConsumerSecret)

		resp, err := p.client.Do(req)
		if err != nil {
			return tokenResponse{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return tokenResponse{}, err
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return tokenResponse{}, backoff.Permanent(fmt.Errorf("token request rejected: status=%d body=%s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode >= 500 {
			return tokenResponse{}, fmt.Errorf("token request failed: status=%d", resp.StatusCode)
		}

		var out tokenResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return tokenResponse{}, backoff.Permanent(err)
		}
		if strings.TrimSpace(out.AccessToken) == "" {
			return tokenResponse{}, backoff.Permanent(errors.New("token response has no access_token"))
		}
		return out, nil
	}, retry)
	if err != nil {
		return "", err
	}

	ttl := 3599 * time.Second
	if seconds, convErr := result.ExpiresIn.Int64(); convErr == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	p.token = result.AccessToken
	p.tokenExpiry = p.now().Add(ttl - time.Minute)
	return p.token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
