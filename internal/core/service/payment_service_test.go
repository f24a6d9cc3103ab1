package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

type stubOrderReader struct {
	views map[string]domain.OrderView
}

func (s *stubOrderReader) FindOrder(ctx context.Context, orderID string) (domain.OrderView, error) {
	v, ok := s.views[orderID]
	if !ok {
		return domain.OrderView{}, domain.NotFound("order", orderID)
	}
	return v, nil
}

func newPaymentFixture(t *testing.T, decide OutcomeDecider) (*PaymentService, *mockPaymentRepo, *recordingPublisher) {
	t.Helper()
	reader := &stubOrderReader{views: map[string]domain.OrderView{
		"o1": {ID: "o1", UserID: "user-1", Total: decimal.RequireFromString("60.00"), Status: domain.OrderStatusPlaced},
		"o2": {ID: "o2", UserID: "user-1", Total: decimal.RequireFromString("10.00"), Status: domain.OrderStatusPreparing},
	}}
	repo := newMockPaymentRepo()
	pub := &recordingPublisher{}
	return NewPaymentService(repo, reader, pub, decide, nil, zaptest.NewLogger(t)), repo, pub
}

func boolPtr(b bool) *bool { return &b }

func TestInitiatePayment_DefaultsToCard(t *testing.T) {
	svc, _, pub := newPaymentFixture(t, nil)

	p, err := svc.InitiatePayment(context.Background(), InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.Equal(t, domain.PaymentMethodCard, p.Method)
	assert.True(t, decimal.RequireFromString("60.00").Equal(p.Amount))
	assert.Empty(t, p.TransactionID)
	assert.Empty(t, pub.events)
}

func TestInitiatePayment_OnePerOrder(t *testing.T) {
	svc, _, _ := newPaymentFixture(t, nil)
	ctx := context.Background()

	_, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1", Method: "CARD"})
	require.NoError(t, err)

	_, err = svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1", Method: "CARD"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInitiatePayment_Rejections(t *testing.T) {
	svc, repo, _ := newPaymentFixture(t, nil)
	ctx := context.Background()

	_, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-2", OrderID: "o1"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o2"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "", OrderID: "o1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, repo.payments)
}

func TestInitiatePayment_CashOnDeliverySettlesImmediately(t *testing.T) {
	svc, _, pub := newPaymentFixture(t, nil)

	p, err := svc.InitiatePayment(context.Background(), InitiatePaymentRequest{
		UserID:  "user-1",
		OrderID: "o1",
		Method:  domain.PaymentMethodCashOnDelivery,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.True(t, strings.HasPrefix(p.TransactionID, "COD-"), p.TransactionID)
	assert.Len(t, p.TransactionID, len("COD-")+8)
	assert.NotNil(t, p.ProcessedAt)

	require.Len(t, pub.events, 1)
	evt, ok := pub.events[0].(domain.PaymentSucceeded)
	require.True(t, ok)
	assert.Equal(t, p.TransactionID, evt.TransactionID)
	assert.Equal(t, "o1", evt.OrderID)
}

func TestProcessPayment_ForcedOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		force      bool
		wantStatus domain.PaymentStatus
		wantEvent  domain.EventType
	}{
		{"success", true, domain.PaymentStatusSuccess, domain.EventPaymentSucceeded},
		{"failure", false, domain.PaymentStatusFailed, domain.EventPaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// decider disagrees with the forced outcome
			svc, _, pub := newPaymentFixture(t, func() bool { return !tt.force })
			ctx := context.Background()

			p, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
			require.NoError(t, err)

			p, err = svc.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "user-1", PaymentID: p.ID, ForceOutcome: boolPtr(tt.force)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, []domain.EventType{tt.wantEvent}, pub.types())

			if tt.force {
				assert.True(t, strings.HasPrefix(p.TransactionID, "TXN-"))
			} else {
				assert.Equal(t, domain.PaymentDeclinedReason, p.FailureReason)
				failed := pub.events[0].(domain.PaymentFailed)
				assert.Equal(t, domain.PaymentDeclinedReason, failed.Reason)
				assert.True(t, p.Amount.Equal(failed.Amount))
			}
		})
	}
}

func TestProcessPayment_UsesDecider(t *testing.T) {
	svc, _, _ := newPaymentFixture(t, func() bool { return false })
	ctx := context.Background()

	p, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
	require.NoError(t, err)

	p, err = svc.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "user-1", PaymentID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
}

func TestProcessPayment_ExactlyOnce(t *testing.T) {
	svc, _, pub := newPaymentFixture(t, nil)
	ctx := context.Background()

	p, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
	require.NoError(t, err)

	_, err = svc.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "user-1", PaymentID: p.ID, ForceOutcome: boolPtr(true)})
	require.NoError(t, err)

	_, err = svc.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "user-1", PaymentID: p.ID, ForceOutcome: boolPtr(false)})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, pub.events, 1)
}

func TestProcessPayment_NotOwned(t *testing.T) {
	svc, _, _ := newPaymentFixture(t, nil)
	ctx := context.Background()

	p, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
	require.NoError(t, err)

	_, err = svc.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "user-2", PaymentID: p.ID, ForceOutcome: boolPtr(true)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessPayment_PublishFailureDoesNotFailPayment(t *testing.T) {
	svc, repo, pub := newPaymentFixture(t, nil)
	pub.err = errors.New("handler exploded")
	ctx := context.Background()

	p, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
	require.NoError(t, err)

	p, err = svc.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "user-1", PaymentID: p.ID, ForceOutcome: boolPtr(true)})
	require.NoError(t, err)

	stored, err := repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, stored.Status)
}

func TestPaymentQueries(t *testing.T) {
	svc, _, _ := newPaymentFixture(t, nil)
	ctx := context.Background()

	p, err := svc.InitiatePayment(ctx, InitiatePaymentRequest{UserID: "user-1", OrderID: "o1"})
	require.NoError(t, err)

	got, err := svc.GetPaymentByOrder(ctx, "user-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.GetPaymentByOrder(ctx, "user-2", "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetPayment(ctx, "user-2", p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := svc.ListUserPayments(ctx, "user-1", domain.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRandomOutcome_Bounds(t *testing.T) {
	always := RandomOutcome(1)
	never := RandomOutcome(0)
	for i := 0; i < 100; i++ {
		assert.True(t, always())
		assert.False(t, never())
	}
}
