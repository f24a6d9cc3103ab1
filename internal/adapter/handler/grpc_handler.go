package handler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/fulfillment-saga/internal/core/service"
)

const (
	GRPCServiceName = "saga.v1.FulfillmentService"

	// JSONCodecName is the content subtype clients pass with grpc.CallContentSubtype.
	JSONCodecName = "json"

	userMetadataKey = "x-user-id"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type OrderRef struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type ProcessPaymentRPCRequest struct {
	PaymentID       string `json:"payment_id"`
	SimulateSuccess *bool  `json:"simulate_success,omitempty"`
}

// FulfillmentServer exposes checkout and payment over gRPC. The caller is
// identified by the x-user-id metadata entry.
type FulfillmentServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequestDTO) (*OrderDTO, error)
	GetOrder(ctx context.Context, req *OrderRef) (*OrderDTO, error)
	CancelOrder(ctx context.Context, req *OrderRef) (*OrderDTO, error)
	InitiatePayment(ctx context.Context, req *InitiatePaymentRequestDTO) (*PaymentDTO, error)
	ProcessPayment(ctx context.Context, req *ProcessPaymentRPCRequest) (*PaymentDTO, error)
}

type GRPCHandler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	logger         *zap.Logger
}

func NewGRPCHandler(orders *service.OrderService, payments *service.PaymentService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orderService: orders, paymentService: payments, logger: logger}
}

func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&fulfillmentServiceDesc, h)
}

func userFromContext(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if ids := md.Get(userMetadataKey); len(ids) > 0 && ids[0] != "" {
		return ids[0], nil
	}
	return "", status.Error(codes.Unauthenticated, userMetadataKey+" metadata is required")
}

func (h *GRPCHandler) toStatus(method string, err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(code, publicMessage(err))
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequestDTO) (*OrderDTO, error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order, err := h.orderService.CreateOrder(ctx, service.CreateOrderRequest{
		UserID:          userID,
		RequestID:       req.RequestID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		return nil, h.toStatus("CreateOrder", err)
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderRef) (*OrderDTO, error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orderService.GetUserOrder(ctx, userID, req.OrderID)
	if err != nil {
		return nil, h.toStatus("GetOrder", err)
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *OrderRef) (*OrderDTO, error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orderService.CancelUserOrder(ctx, userID, req.OrderID)
	if err != nil {
		return nil, h.toStatus("CancelOrder", err)
	}
	dto := toOrderDTO(order)
	return &dto, nil
}

func (h *GRPCHandler) InitiatePayment(ctx context.Context, req *InitiatePaymentRequestDTO) (*PaymentDTO, error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	payment, err := h.paymentService.InitiatePayment(ctx, service.InitiatePaymentRequest{
		UserID:  userID,
		OrderID: req.OrderID,
		Method:  req.PaymentMethod,
	})
	if err != nil {
		return nil, h.toStatus("InitiatePayment", err)
	}
	dto := toPaymentDTO(payment)
	return &dto, nil
}

func (h *GRPCHandler) ProcessPayment(ctx context.Context, req *ProcessPaymentRPCRequest) (*PaymentDTO, error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	payment, err := h.paymentService.ProcessPayment(ctx, service.ProcessPaymentRequest{
		UserID:       userID,
		PaymentID:    req.PaymentID,
		ForceOutcome: req.SimulateSuccess,
	})
	if err != nil {
		return nil, h.toStatus("ProcessPayment", err)
	}
	dto := toPaymentDTO(payment)
	return &dto, nil
}

func unaryHandler[Req any, Resp any](name string, call func(FulfillmentServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FulfillmentServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + GRPCServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(FulfillmentServer), ctx, req.(*Req))
			})
		},
	}
}

var fulfillmentServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*FulfillmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateOrder", FulfillmentServer.CreateOrder),
		unaryHandler("GetOrder", FulfillmentServer.GetOrder),
		unaryHandler("CancelOrder", FulfillmentServer.CancelOrder),
		unaryHandler("InitiatePayment", FulfillmentServer.InitiatePayment),
		unaryHandler("ProcessPayment", FulfillmentServer.ProcessPayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fulfillment.proto",
}
