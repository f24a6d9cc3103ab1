package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/core/service"
	"github.com/rl1809/fulfillment-saga/internal/metrics"
)

// Identity comes from an upstream gateway; authentication is not done here.
const (
	userHeader   = "X-User-ID"
	vendorHeader = "X-Vendor-ID"
)

type HTTPHandler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

func NewHTTPHandler(orders *service.OrderService, payments *service.PaymentService, m *metrics.Metrics, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{orderService: orders, paymentService: payments, metrics: m, logger: logger}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api/v1")

	orders := api.Group("/orders", requireHeader(userHeader))
	orders.POST("", h.CreateOrder)
	orders.GET("", h.ListUserOrders)
	orders.GET("/:id", h.GetUserOrder)
	orders.POST("/:id/cancel", h.CancelUserOrder)
	orders.GET("/:id/payment", h.GetPaymentByOrder)

	vendor := api.Group("/vendor/orders", requireHeader(vendorHeader))
	vendor.GET("", h.ListVendorOrders)
	vendor.GET("/:id", h.GetVendorOrder)
	vendor.PATCH("/:id/status", h.UpdateOrderStatus)

	payments := api.Group("/payments", requireHeader(userHeader))
	payments.POST("", h.InitiatePayment)
	payments.GET("", h.ListUserPayments)
	payments.GET("/:id", h.GetPayment)
	payments.POST("/:id/process", h.ProcessPayment)

	admin := api.Group("/admin/orders")
	admin.GET("/:id", h.GetOrder)
	admin.POST("/:id/cancel", h.CancelOrder)
}

// MetricsMiddleware records request count and latency per route template.
func (h *HTTPHandler) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		h.metrics.HTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

func requireHeader(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(name) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: name + " header is required"})
			return
		}
		c.Next()
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, ErrorResponse{Error: publicMessage(err), Kind: string(domain.KindOf(err))})
}

// bindOptionalJSON accepts an empty body and rejects a malformed one.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: string(domain.KindValidation)})
		return false
	}
	return true
}

func pageFromQuery(c *gin.Context) domain.Page {
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return domain.Page{Offset: offset, Limit: limit}.Normalize()
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: string(domain.KindValidation)})
		return
	}

	items := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), service.CreateOrderRequest{
		UserID:          c.GetHeader(userHeader),
		RequestID:       req.RequestID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderDTO(order))
}

func (h *HTTPHandler) ListUserOrders(c *gin.Context) {
	orders, err := h.orderService.ListUserOrders(c.Request.Context(), c.GetHeader(userHeader), pageFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTOs(orders))
}

func (h *HTTPHandler) GetUserOrder(c *gin.Context) {
	order, err := h.orderService.GetUserOrder(c.Request.Context(), c.GetHeader(userHeader), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) CancelUserOrder(c *gin.Context) {
	order, err := h.orderService.CancelUserOrder(c.Request.Context(), c.GetHeader(userHeader), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) ListVendorOrders(c *gin.Context) {
	status := domain.OrderStatus(c.Query("status"))
	orders, err := h.orderService.ListVendorOrders(c.Request.Context(), c.GetHeader(vendorHeader), status, pageFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTOs(orders))
}

func (h *HTTPHandler) GetVendorOrder(c *gin.Context) {
	order, err := h.orderService.GetVendorOrder(c.Request.Context(), c.GetHeader(vendorHeader), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateStatusRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: string(domain.KindValidation)})
		return
	}

	order, err := h.orderService.UpdateStatusByVendor(c.Request.Context(), service.VendorStatusUpdate{
		VendorID:              c.GetHeader(vendorHeader),
		OrderID:               c.Param("id"),
		Status:                domain.OrderStatus(req.Status),
		Note:                  req.Note,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	var req CancelOrderRequestDTO
	if !bindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.orderService.CancelOrder(ctx, c.Param("id"), req.Reason); err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.orderService.GetOrder(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *HTTPHandler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: string(domain.KindValidation)})
		return
	}

	payment, err := h.paymentService.InitiatePayment(c.Request.Context(), service.InitiatePaymentRequest{
		UserID:  c.GetHeader(userHeader),
		OrderID: req.OrderID,
		Method:  req.PaymentMethod,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentDTO(payment))
}

func (h *HTTPHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequestDTO
	if !bindOptionalJSON(c, &req) {
		return
	}

	payment, err := h.paymentService.ProcessPayment(c.Request.Context(), service.ProcessPaymentRequest{
		UserID:       c.GetHeader(userHeader),
		PaymentID:    c.Param("id"),
		ForceOutcome: req.SimulateSuccess,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(payment))
}

func (h *HTTPHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.GetHeader(userHeader), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(payment))
}

func (h *HTTPHandler) GetPaymentByOrder(c *gin.Context) {
	payment, err := h.paymentService.GetPaymentByOrder(c.Request.Context(), c.GetHeader(userHeader), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(payment))
}

func (h *HTTPHandler) ListUserPayments(c *gin.Context) {
	payments, err := h.paymentService.ListUserPayments(c.Request.Context(), c.GetHeader(userHeader), pageFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTOs(payments))
}
