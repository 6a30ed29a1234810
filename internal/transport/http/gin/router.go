package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/metrics"
	redisrepo "github.com/mkravets/tickethub/internal/repository/redis"
	"github.com/mkravets/tickethub/internal/service"
	"github.com/mkravets/tickethub/internal/service/checkin"
	"github.com/mkravets/tickethub/internal/service/checkout"
	"github.com/mkravets/tickethub/internal/service/discounts"
	"github.com/mkravets/tickethub/internal/service/query"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		LoggingMiddleware(logger),
		RequestIDMiddleware(),
		MetricsMiddleware(),
		CORS(),
	)
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public storefront
	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/ticket-types", handleEventTicketTypes(svcs))
	r.POST("/discounts/validate", handleValidateDiscount(svcs))
	r.POST("/checkout", handleCheckout(svcs, idem))

	// Buyer order lookup, gated on the buyer's email
	r.GET("/orders", handleOrdersByEmail(svcs))
	r.GET("/orders/:id", handleGetOrder(svcs))

	// Staff API, identity established by the upstream gateway
	staff := r.Group("/staff", StaffAuthMiddleware())
	{
		staff.POST("/checkin", handleCheckin(svcs))
		staff.GET("/tickets", handleTenantTickets(svcs))
		staff.GET("/tickets/search", handleSearchTickets(svcs))
		staff.GET("/attendance", handleAttendance(svcs))
		staff.GET("/events/:id/capacity", handleCapacity(svcs))
		staff.GET("/orders/search", handleSearchOrders(svcs))
		staff.GET("/orders/:id", handleTenantOrder(svcs))
		staff.GET("/activity", handleActorActivity(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List published events
// @Param    limit  query  int  false  "page size"
// @Param    offset query  int  false  "offset"
// @Success  200  {array}  domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		events, err := svcs.Query.ListEvents(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, events, "public, max-age=30", true)
	}
}

// @Summary  Get event
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c.Param("id"))
		if !ok {
			badRequest(c, "invalid event id")
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

// @Summary  List purchasable ticket types
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {array}  query.EventTicketType
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/ticket-types [get]
func handleEventTicketTypes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c.Param("id"))
		if !ok {
			badRequest(c, "invalid event id")
			return
		}
		types, err := svcs.Query.EventTicketTypes(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// availability moves fast, keep the edge cache short
		writeJSONWithCache(c, http.StatusOK, types, "public, max-age=15", true)
	}
}

// @Summary  Validate discount code
// @Param    req  body  ValidateDiscountRequest  true  "payload"
// @Success  200  {object}  discounts.Result
// @Failure  404  {object}  ErrorResponse
// @Router   /discounts/validate [post]
func handleValidateDiscount(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateDiscountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		eventID, _ := uuid.Parse(req.EventID)

		res, err := svcs.Discounts.Validate(c.Request.Context(), eventID, req.Code)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Checkout (idempotent)
// @Param    req  body  CheckoutRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  domain.OrderDetail
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "insufficient inventory / discount exhausted / idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /checkout [post]
func handleCheckout(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		eventID, _ := uuid.Parse(req.EventID)

		items := make([]checkout.CartItem, 0, len(req.Items))
		for _, it := range req.Items {
			ttID, err := uuid.Parse(it.TicketTypeID)
			if err != nil {
				badRequest(c, "invalid ticket_type_id")
				return
			}
			items = append(items, checkout.CartItem{
				TicketTypeID: ttID,
				Quantity:     it.Quantity,
			})
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCheckout(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		detail, err := svcs.Checkout.Checkout(c.Request.Context(), checkout.Input{
			EventID:      eventID,
			Items:        items,
			BuyerEmail:   req.BuyerEmail,
			BuyerName:    req.BuyerName,
			DiscountCode: req.DiscountCode,
		}, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, checkout.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: "rate limited"},
				)
				return
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(detail)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, detail)
	}
}

// @Summary  List buyer orders
// @Param    email  query  string  true  "buyer email"
// @Success  200  {array}  domain.OrderDetail
// @Router   /orders [get]
func handleOrdersByEmail(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := svcs.Query.OrdersByEmail(
			c.Request.Context(),
			c.Query("email"),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, details)
	}
}

// @Summary  Get order with items and tickets
// @Param    id     path   string  true  "Order ID (uuid)"
// @Param    email  query  string  true  "buyer email"
// @Success  200  {object}  domain.OrderDetail
// @Failure  404  {object}  ErrorResponse
// @Router   /orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseUUIDParam(c.Param("id"))
		if !ok {
			badRequest(c, "invalid order id")
			return
		}
		detail, err := svcs.Query.OrderForBuyer(
			c.Request.Context(),
			orderID,
			c.Query("email"),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// @Summary  Check in a ticket
// @Param    req  body  CheckinRequest  true  "scanned QR payload or ticket id"
// @Success  200  {object}  CheckinResponse
// @Failure  403  {object}  ErrorResponse  "ticket belongs to another tenant"
// @Failure  409  {object}  ErrorResponse  "already checked in"
// @Router   /staff/checkin [post]
func handleCheckin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, staffID, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		var req CheckinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		in := checkin.ScanInput{
			QRPayload: req.QRPayload,
			Signature: req.Signature,
		}
		if req.TicketID != "" {
			id, err := uuid.Parse(req.TicketID)
			if err != nil {
				badRequest(c, "invalid ticket_id")
				return
			}
			in.TicketID = id
		}

		ticket, err := svcs.Checkin.CheckIn(
			c.Request.Context(),
			checkin.StaffContext{TenantID: tenantID, StaffID: staffID},
			in,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CheckinResponse{
			Message: "Ticket checked in successfully",
			Ticket:  toTicketView(*ticket),
		})
	}
}

// @Summary  List tenant tickets
// @Param    limit  query  int  false  "page size"
// @Param    offset query  int  false  "offset"
// @Success  200  {object}  TicketPageResponse
// @Router   /staff/tickets [get]
func handleTenantTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		page, err := svcs.Query.TenantTickets(c.Request.Context(), tenantID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TicketPageResponse{
			Tickets: toTicketViews(page.Tickets),
			Total:   page.Total,
			Limit:   page.Limit,
			Offset:  page.Offset,
		})
	}
}

// @Summary  Search tickets by attendee
// @Param    q  query  string  true  "name or email fragment, min 2 chars"
// @Success  200  {array}  TicketView
// @Router   /staff/tickets/search [get]
func handleSearchTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		tickets, err := svcs.Query.SearchTickets(
			c.Request.Context(),
			tenantID,
			c.Query("q"),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTicketViews(tickets))
	}
}

// @Summary  List checked-in tickets
// @Param    event_id  query  string  false  "narrow to one event (uuid)"
// @Success  200  {array}  TicketView
// @Router   /staff/attendance [get]
func handleAttendance(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		var eventID *uuid.UUID
		if s := c.Query("event_id"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				badRequest(c, "invalid event_id")
				return
			}
			eventID = &id
		}

		tickets, err := svcs.Query.Attendance(c.Request.Context(), tenantID, eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toTicketViews(tickets))
	}
}

// @Summary  Event capacity summary
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  domain.CapacitySummary
// @Failure  404  {object}  ErrorResponse
// @Router   /staff/events/{id}/capacity [get]
func handleCapacity(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		eventID, okID := parseUUIDParam(c.Param("id"))
		if !okID {
			badRequest(c, "invalid event id")
			return
		}

		summary, err := svcs.Query.Capacity(c.Request.Context(), tenantID, eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// @Summary  Search tenant orders by buyer email
// @Param    email  query  string  true  "buyer email"
// @Success  200  {array}  domain.Order
// @Router   /staff/orders/search [get]
func handleSearchOrders(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		orders, err := svcs.Query.SearchOrders(
			c.Request.Context(),
			tenantID,
			c.Query("email"),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

// @Summary  Get tenant order
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  200  {object}  domain.OrderDetail
// @Failure  404  {object}  ErrorResponse
// @Router   /staff/orders/{id} [get]
func handleTenantOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, _, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		orderID, okID := parseUUIDParam(c.Param("id"))
		if !okID {
			badRequest(c, "invalid order id")
			return
		}

		detail, err := svcs.Query.TenantOrder(c.Request.Context(), tenantID, orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// @Summary  Own audit trail
// @Param    limit  query  int  false  "page size"
// @Param    offset query  int  false  "offset"
// @Success  200  {object}  map[string]any
// @Router   /staff/activity [get]
func handleActorActivity(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, staffID, ok := staffFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		entries, total, err := svcs.Query.ActorActivity(
			c.Request.Context(),
			tenantID,
			staffID,
			limit,
			offset,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// --- Helpers ---

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// checkout service
	case errors.Is(err, checkout.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, checkout.ErrUnknownTicketType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown ticket type"})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cart is empty"})
	case errors.Is(err, checkout.ErrBadQuantity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "quantity must be positive"})
	case errors.Is(err, checkout.ErrDuplicateCartLine):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "duplicate cart line"})
	case errors.Is(err, checkout.ErrMissingBuyer):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "buyer name and email are required"})
	case errors.Is(err, checkout.ErrNotOnSale):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ticket type not on sale"})
	case errors.Is(err, checkout.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient inventory"})
	case errors.Is(err, checkout.ErrDiscountConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "discount code no longer available"})

	// checkin service
	case errors.Is(err, checkin.ErrMissingInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "qr_payload or ticket_id required"})
	case errors.Is(err, checkin.ErrInvalidCredential):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ticket credential"})
	case errors.Is(err, checkin.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, checkin.ErrWrongTenant):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "ticket belongs to another tenant"})
	case errors.Is(err, checkin.ErrDuplicateScan):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket already checked in"})
	case errors.Is(err, checkin.ErrNotCheckable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket is not checkable"})

	// discounts service
	case errors.Is(err, discounts.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, discounts.ErrEmptyCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "discount code is required"})

	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, query.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, query.ErrShortTerm):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "search term too short"})
	case errors.Is(err, query.ErrMissingEmail):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "email is required"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
