package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skybridge/internal/core/domain"
	"skybridge/internal/infrastructure/monitoring"
	"skybridge/internal/infrastructure/repositories/memory"
	"skybridge/pkg/observe"
	"skybridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeController struct {
	running  bool
	sessions []domain.RemoteSession
}

func (f *fakeController) StartServer(_ context.Context, _ int) bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeController) StopServer() { f.running = false }

func (f *fakeController) State() domain.ServerState {
	if f.running {
		return domain.ServerRunning
	}
	return domain.ServerStopped
}

func (f *fakeController) Sessions() []domain.RemoteSession { return f.sessions }

type fakeNegotiator struct {
	bridged    []domain.AccountID
	negotiated []negotiateCall
}

type negotiateCall struct {
	device  domain.DeviceID
	account domain.AccountID
}

func (f *fakeNegotiator) NegotiateTransport(_ context.Context, device domain.DeviceID, account domain.AccountID) (domain.Transport, error) {
	f.negotiated = append(f.negotiated, negotiateCall{device: device, account: account})
	return domain.NewCloudRelay(domain.CloudRelay{AccountID: account}), nil
}

func (f *fakeNegotiator) ForceAccountBridge(_ context.Context, account domain.AccountID) (*domain.AccountEndpoint, error) {
	f.bridged = append(f.bridged, account)
	return &domain.AccountEndpoint{
		AccountID:   account,
		RelayID:     utils.GenerateRelayID(),
		LastUpdated: time.Now(),
	}, nil
}

func (f *fakeNegotiator) Release() {}

type fakeRebinds struct {
	accounts []domain.AccountID
	relays   []string
}

func (f *fakeRebinds) PublishAccountRebound(_ context.Context, account domain.AccountID, relayID string) error {
	f.accounts = append(f.accounts, account)
	f.relays = append(f.relays, relayID)
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeController, *fakeNegotiator, *fakeRebinds, *observe.Value[domain.Transport]) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t).Sugar()
	directory := memory.NewPeerDirectory()
	require.NoError(t, directory.Upsert(context.Background(), &domain.PeerDevice{
		DeviceID:    "peer-1",
		DisplayName: "Office Tablet",
		Address:     "aa:bb:cc:dd:ee:ff",
	}))

	controller := &fakeController{}
	negotiator := &fakeNegotiator{}
	rebinds := &fakeRebinds{}
	transport := observe.NewValue[domain.Transport]()

	health := monitoring.NewHealthChecker()
	health.AddCheck("stream_server", func(_ context.Context) (bool, error) { return true, nil }, time.Second)

	handler := NewStatusHandler(directory, controller, negotiator, transport, health, NewEventHub(logger), rebinds, "skybridge_cloud", logger)
	router := gin.New()
	handler.SetupRoutes(router)
	return router, controller, negotiator, rebinds, transport
}

func TestListPeers(t *testing.T) {
	router, _, _, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/peers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Peers []domain.PeerDevice `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Peers, 1)
	assert.Equal(t, domain.DeviceID("peer-1"), body.Peers[0].DeviceID)
}

func TestListSessionsIncludesServerState(t *testing.T) {
	router, controller, _, _, _ := newTestRouter(t)
	controller.sessions = []domain.RemoteSession{{SessionID: "s-1", IsActive: true}}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "s-1")
	assert.Contains(t, w.Body.String(), string(domain.ServerStopped))
}

func TestCurrentTransportEmptyThenSet(t *testing.T) {
	router, _, _, _, transport := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transport", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "null")

	transport.Set(domain.NewLocalLan(domain.LocalLan{IPAddress: "192.168.1.20", Port: 5920}))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transport", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "192.168.1.20")
}

func TestForceBridge(t *testing.T) {
	router, _, negotiator, rebinds, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/bridge/team_account", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, negotiator.bridged, 1)
	assert.Equal(t, domain.AccountID("team_account"), negotiator.bridged[0])

	// a manual rebind is broadcast so peer daemons refresh their caches
	require.Len(t, rebinds.accounts, 1)
	assert.Equal(t, domain.AccountID("team_account"), rebinds.accounts[0])
	assert.NotEmpty(t, rebinds.relays[0])
}

func TestNegotiateUsesDefaultAccount(t *testing.T) {
	router, _, negotiator, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/negotiate/peer-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, negotiator.negotiated, 1)
	assert.Equal(t, domain.DeviceID("peer-1"), negotiator.negotiated[0].device)
	assert.Equal(t, domain.AccountID("skybridge_cloud"), negotiator.negotiated[0].account)
	assert.Contains(t, w.Body.String(), "transport")
}

func TestNegotiateAccountOverride(t *testing.T) {
	router, _, negotiator, _, _ := newTestRouter(t)

	body := strings.NewReader(`{"account":"team_account"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/negotiate/peer-1", body))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, negotiator.negotiated, 1)
	assert.Equal(t, domain.AccountID("team_account"), negotiator.negotiated[0].account)
}

func TestServerStartStop(t *testing.T) {
	router, controller, _, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/server/start", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, controller.running)

	// starting twice conflicts
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/server/start", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/server/stop", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, controller.running)
}

func TestEventFeedRouteDisabledWithoutHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	health := monitoring.NewHealthChecker()
	handler := NewStatusHandler(memory.NewPeerDirectory(), &fakeController{}, &fakeNegotiator{},
		observe.NewValue[domain.Transport](), health, nil, nil, "skybridge_cloud", logger)
	router := gin.New()
	handler.SetupRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
