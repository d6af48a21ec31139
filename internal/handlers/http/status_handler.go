package http

import (
	"context"
	"net/http"

	"skybridge/internal/core/domain"
	"skybridge/internal/core/ports"
	"skybridge/internal/infrastructure/middleware"
	"skybridge/internal/infrastructure/monitoring"
	"skybridge/pkg/observe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RebindNotifier broadcasts a manual account rebind to peer daemons so
// they can refresh their endpoint caches.
type RebindNotifier interface {
	PublishAccountRebound(ctx context.Context, account domain.AccountID, relayID string) error
}

// StatusHandler is the local control surface: peer directory, session
// table, transport negotiation and the manual cloud-bridge trigger.
type StatusHandler struct {
	directory      ports.PeerDirectory
	controller     ports.SessionController
	negotiator     ports.TransportNegotiator
	transport      *observe.Value[domain.Transport]
	health         *monitoring.HealthChecker
	events         *EventHub
	rebinds        RebindNotifier
	defaultAccount domain.AccountID
	logger         *zap.SugaredLogger
}

func NewStatusHandler(
	directory ports.PeerDirectory,
	controller ports.SessionController,
	negotiator ports.TransportNegotiator,
	transport *observe.Value[domain.Transport],
	health *monitoring.HealthChecker,
	events *EventHub,
	rebinds RebindNotifier,
	defaultAccount domain.AccountID,
	logger *zap.SugaredLogger,
) *StatusHandler {
	return &StatusHandler{
		directory:      directory,
		controller:     controller,
		negotiator:     negotiator,
		transport:      transport,
		health:         health,
		events:         events,
		rebinds:        rebinds,
		defaultAccount: defaultAccount,
		logger:         logger,
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.Use(middleware.Tracing())
	router.Use(middleware.ErrorHandler(h.logger))
	router.Use(middleware.RateLimit(50, 100))

	api := router.Group("/api/v1")
	{
		api.GET("/peers", h.ListPeers)
		api.GET("/sessions", h.ListSessions)
		api.GET("/transport", h.CurrentTransport)
		api.POST("/negotiate/:device", h.Negotiate)
		api.POST("/bridge/:account", h.ForceBridge)
		api.POST("/server/start", h.StartServer)
		api.POST("/server/stop", h.StopServer)
		if h.events != nil {
			api.GET("/events", h.events.Handle)
		}
	}

	router.GET("/health", h.Health)
}

func (h *StatusHandler) ListPeers(c *gin.Context) {
	peers, err := h.directory.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

func (h *StatusHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server_state": h.controller.State(),
		"sessions":     h.controller.Sessions(),
	})
}

func (h *StatusHandler) CurrentTransport(c *gin.Context) {
	transport, ok := h.transport.Get()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"transport": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transport": transport})
}

// Negotiate runs a full transport negotiation against one target device.
// The fallback account may be overridden in the request body.
func (h *StatusHandler) Negotiate(c *gin.Context) {
	device := domain.DeviceID(c.Param("device"))

	var req struct {
		Account string `json:"account"`
	}
	// body is optional; an empty account means the configured default
	_ = c.ShouldBindJSON(&req)
	account := h.defaultAccount
	if req.Account != "" {
		account = domain.AccountID(req.Account)
	}

	transport, err := h.negotiator.NegotiateTransport(c.Request.Context(), device, account)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transport": transport})
}

func (h *StatusHandler) ForceBridge(c *gin.Context) {
	account := domain.AccountID(c.Param("account"))

	endpoint, err := h.negotiator.ForceAccountBridge(c.Request.Context(), account)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if h.rebinds != nil {
		if perr := h.rebinds.PublishAccountRebound(c.Request.Context(), account, endpoint.RelayID); perr != nil {
			h.logger.Warnw("account rebind broadcast failed",
				"account", account, "relay", endpoint.RelayID, "error", perr)
		}
	}
	c.JSON(http.StatusOK, gin.H{"endpoint": endpoint})
}

func (h *StatusHandler) StartServer(c *gin.Context) {
	var req struct {
		Port int `json:"port"`
	}
	// body is optional; an empty port means the configured default
	_ = c.ShouldBindJSON(&req)

	// the server outlives the request, so it gets its own context
	if !h.controller.StartServer(context.Background(), req.Port) {
		_ = c.Error(domain.ErrServerAlreadyRunning)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.controller.State()})
}

func (h *StatusHandler) StopServer(c *gin.Context) {
	h.controller.StopServer()
	c.JSON(http.StatusOK, gin.H{"state": h.controller.State()})
}

func (h *StatusHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
