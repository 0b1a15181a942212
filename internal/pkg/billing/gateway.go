package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/photovault/photovault/internal/pkg/env"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ErrGatewayUnavailable is returned while the gateway circuit breaker is open.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Gateway is the subset of the payment processor API used by reconciliation.
type Gateway interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
}

// StripeGateway calls the Stripe API behind a circuit breaker.
type StripeGateway struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker[any]
}

// GatewayConfig configures the Stripe gateway breaker.
type GatewayConfig struct {
	SecretKey        string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// NewStripeGatewayFromEnv builds a gateway from STRIPE_SECRET_KEY.
func NewStripeGatewayFromEnv() (*StripeGateway, error) {
	return NewStripeGateway(GatewayConfig{
		SecretKey:        strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	})
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(cfg GatewayConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	settings := gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[Billing] Circuit breaker %s changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &StripeGateway{
		api:     api,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}, nil
}

func (g *StripeGateway) execute(fn func() (any, error)) (any, error) {
	res, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return res, err
}

// GetSubscription retrieves the full subscription object by id.
func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	res, err := g.execute(func() (any, error) {
		return g.api.Subscriptions.Get(subscriptionID, params)
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}
	return res.(*stripe.Subscription), nil
}

// CreateTransfer moves funds to a connected account and returns the transfer id.
func (g *StripeGateway) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.AmountCents <= 0 {
		return "", errors.New("transfer amount must be positive")
	}
	if strings.TrimSpace(req.DestinationAccountID) == "" {
		return "", errors.New("transfer destination is required")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.DestinationAccountID),
	}
	params.Context = ctx
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	res, err := g.execute(func() (any, error) {
		return g.api.Transfers.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("create transfer to %s: %w", req.DestinationAccountID, err)
	}
	return res.(*stripe.Transfer).ID, nil
}
