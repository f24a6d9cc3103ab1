package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func setupGRPCTest(t *testing.T) (*testApp, *grpc.ClientConn) {
	t.Helper()
	app := newTestApp(t)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewGRPCHandler(app.orders, app.payments, zaptest.NewLogger(t)).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return app, conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in, out any) error {
	return conn.Invoke(ctx, "/"+GRPCServiceName+"/"+method, in, out)
}

func asGRPCUser(userID string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), userMetadataKey, userID)
}

func TestGRPCHandler_CheckoutPayAndConfirm(t *testing.T) {
	app, conn := setupGRPCTest(t)
	ctx := asGRPCUser("user-1")

	var order OrderDTO
	require.NoError(t, invoke(ctx, conn, "CreateOrder", checkoutBody(2), &order))
	assert.Equal(t, "40.00", order.Total)
	assert.Equal(t, "PLACED", order.Status)

	var payment PaymentDTO
	require.NoError(t, invoke(ctx, conn, "InitiatePayment", &InitiatePaymentRequestDTO{OrderID: order.ID}, &payment))
	assert.Equal(t, "PENDING", payment.Status)

	require.NoError(t, invoke(ctx, conn, "ProcessPayment", &ProcessPaymentRPCRequest{PaymentID: payment.ID}, &payment))
	assert.Equal(t, "SUCCESS", payment.Status)

	require.NoError(t, invoke(ctx, conn, "GetOrder", &OrderRef{OrderID: order.ID}, &order))
	assert.Equal(t, "PREPARING", order.Status)

	inv, err := app.store.GetStock(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, inv.Available)
}

func TestGRPCHandler_CancelRestoresStock(t *testing.T) {
	app, conn := setupGRPCTest(t)
	ctx := asGRPCUser("user-1")

	var order OrderDTO
	require.NoError(t, invoke(ctx, conn, "CreateOrder", checkoutBody(5), &order))
	require.NoError(t, invoke(ctx, conn, "CancelOrder", &OrderRef{OrderID: order.ID}, &order))
	assert.Equal(t, "CANCELLED", order.Status)

	inv, err := app.store.GetStock(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, inv.Available)
}

func TestGRPCHandler_ErrorCodes(t *testing.T) {
	_, conn := setupGRPCTest(t)

	var order OrderDTO
	err := invoke(context.Background(), conn, "CreateOrder", checkoutBody(1), &order)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := asGRPCUser("user-1")
	err = invoke(ctx, conn, "CreateOrder", checkoutBody(0), &order)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = invoke(ctx, conn, "CreateOrder", checkoutBody(11), &order)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, "insufficient stock for product: Mug", status.Convert(err).Message())

	err = invoke(ctx, conn, "GetOrder", &OrderRef{OrderID: "missing"}, &order)
	assert.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, invoke(ctx, conn, "CreateOrder", checkoutBody(1), &order))
	var payment PaymentDTO
	err = invoke(asGRPCUser("user-2"), conn, "InitiatePayment", &InitiatePaymentRequestDTO{OrderID: order.ID}, &payment)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	require.NoError(t, invoke(ctx, conn, "InitiatePayment", &InitiatePaymentRequestDTO{OrderID: order.ID}, &payment))
	err = invoke(ctx, conn, "InitiatePayment", &InitiatePaymentRequestDTO{OrderID: order.ID}, &payment)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}
