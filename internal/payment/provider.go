package payment

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Sandbox is a local provider that issues order ids without a network call.
type Sandbox struct{}

// CreateOrder returns a fresh provider order id.
func (Sandbox) CreateOrder(_ context.Context, _ int64, _, _ string) (string, error) {
	return "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14], nil
}

// Razorpay creates orders through the Razorpay REST API.
type Razorpay struct {
	client    *http.Client
	baseURL   string
	keyID     string
	keySecret string
}

// RazorpayConfig configures the Razorpay client.
type RazorpayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// NewRazorpay creates a Razorpay client. Requests are traced with tp.
func NewRazorpay(cfg RazorpayConfig, tp trace.TracerProvider) *Razorpay {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	var opts []otelhttp.Option
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return &Razorpay{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
	}
}

// CreateOrder creates a provider order for amount minor units.
func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(amount)
	e.FieldStart("currency")
	e.Str(currency)
	e.FieldStart("receipt")
	e.Str(receipt)
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("razorpay: status %d: %s", resp.StatusCode, providerError(body))
	}

	var id string
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		id = v
		return err
	}); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if id == "" {
		return "", errors.New("razorpay: response without order id")
	}
	return id, nil
}

// providerError extracts error.description from a Razorpay error body.
func providerError(body []byte) string {
	var desc string
	_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "description" {
				return d.Skip()
			}
			v, err := d.Str()
			desc = v
			return err
		})
	})
	if desc == "" {
		return strings.TrimSpace(string(body))
	}
	return desc
}
