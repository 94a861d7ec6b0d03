package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"go.uber.org/zap"

	"github.com/movesmart/maas-backend/pkg/logger"
	"github.com/movesmart/maas-backend/pkg/resilience"
)

// PaymentClient charges the user's stored payment method for an auto-refill.
// Implementations must be safe for concurrent use.
type PaymentClient interface {
	ChargeRefill(ctx context.Context, customerID string, amountUSD float64, note string) error
}

// StripeClient implements PaymentClient with off-session PaymentIntents.
type StripeClient struct {
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewStripeClient creates a Stripe-backed payment client with circuit
// breaker and retry around the API calls.
func NewStripeClient(apiKey string, breaker *resilience.CircuitBreaker) *StripeClient {
	stripe.Key = apiKey

	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "stripe-refill",
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
		}, resilience.NoopFallback)
	}

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.MaxAttempts = 3
	retryConfig.InitialBackoff = 1 * time.Second
	retryConfig.MaxBackoff = 10 * time.Second

	return &StripeClient{breaker: breaker, retry: retryConfig}
}

// ChargeRefill charges the customer's default payment method off-session.
// The wallet transaction is rolled back by the caller when this fails.
func (s *StripeClient) ChargeRefill(ctx context.Context, customerID string, amountUSD float64, note string) error {
	amountCents := int64(amountUSD * 100)

	_, err := resilience.RetryWithBreaker(ctx, s.retry, s.breaker, func(ctx context.Context) (interface{}, error) {
		params := &stripe.PaymentIntentParams{
			Amount:      stripe.Int64(amountCents),
			Currency:    stripe.String(string(stripe.CurrencyUSD)),
			Customer:    stripe.String(customerID),
			Description: stripe.String(note),
			Confirm:     stripe.Bool(true),
			OffSession:  stripe.Bool(true),
		}
		return paymentintent.New(params)
	})

	if err != nil {
		logger.Get().Error("Stripe refill charge failed",
			zap.String("customer_id", customerID),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err),
		)
		return fmt.Errorf("refill charge: %w", err)
	}

	return nil
}
