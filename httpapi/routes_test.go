package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/changestream"
	"erpcache.eve.dev/config"
	"erpcache.eve.dev/erp"
	"erpcache.eve.dev/kv"
	"erpcache.eve.dev/refresh"
	"erpcache.eve.dev/security"
	"erpcache.eve.dev/syncapi"
	"erpcache.eve.dev/transform"
	"erpcache.eve.dev/users"
	"erpcache.eve.dev/webhook"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeFetcher struct{}

func (f *fakeFetcher) FetchProduct(ctx context.Context, id string) (map[string]interface{}, error) {
	return map[string]interface{}{"id": id}, nil
}
func (f *fakeFetcher) FetchAllProductIndex(ctx context.Context) ([]erp.ProductIndexEntry, error) {
	return nil, nil
}
func (f *fakeFetcher) FetchItemPrice(ctx context.Context, itemCode string) (erp.ItemPrice, error) {
	return erp.ItemPrice{Retail: 5, Wholesale: 3}, nil
}
func (f *fakeFetcher) FetchItemStockWarehouses(ctx context.Context, itemCode string) ([]string, error) {
	return []string{"Idlib"}, nil
}
func (f *fakeFetcher) FetchHeroImageURLs(ctx context.Context) ([]string, error)   { return nil, nil }
func (f *fakeFetcher) FetchBundleImageURLs(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeFetcher) FetchAppHomeRaw(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
func (f *fakeFetcher) FetchBlob(ctx context.Context, url string) ([]byte, string, error) {
	return nil, "", nil
}

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T) (*echo.Echo, *kv.Store, *users.Messages) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := kv.NewFromClient(client)
	layer := cache.NewLayer(store, nil)
	streams := changestream.NewManager(store)
	handler := webhook.NewHandler(layer, streams, nil)
	fetcher := &fakeFetcher{}
	transformer := transform.NewTransformer(fetcher, layer, nil)
	ingestor := webhook.NewIngestor(fetcher, transformer, handler, store)
	syncSvc := syncapi.NewService(layer, streams)
	enumerator := refresh.NewEnumerator(fetcher, transformer, store, nil)
	runner := refresh.NewRunner(handler, 0, nil)
	userStore := users.NewStore(store, nil, bcrypt.MinCost)
	messages := users.NewMessages(store, layer, handler)

	e := NewEchoServer(config.ServerConfig{BodyLimit: "1M", AllowedOrigins: []string{"*"}})
	RegisterRoutes(e, Dependencies{
		Ingestor: ingestor, Sync: syncSvc, Cache: layer,
		Enumerator: enumerator, Runner: runner, Users: userStore, Messages: messages, JWTSecret: testJWTSecret,
	})

	return e, store, messages
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	claims := security.Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestHealthzAndVersionRoutes(t *testing.T) {
	e, _, _ := newTestServer(t)

	healthRec := httptest.NewRecorder()
	e.ServeHTTP(healthRec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, healthRec.Code)
	assert.Contains(t, healthRec.Body.String(), "ok")

	versionRec := httptest.NewRecorder()
	e.ServeHTTP(versionRec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, versionRec.Code)
	assert.Contains(t, versionRec.Body.String(), "goVersion")

	missingDepRec := httptest.NewRecorder()
	e.ServeHTTP(missingDepRec, httptest.NewRequest(http.MethodGet, "/version?dependency=example.com/not-a-real-dependency", nil))
	assert.Equal(t, http.StatusNotFound, missingDepRec.Code)
}

func TestWebhookIngestPriceRoute(t *testing.T) {
	e, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/erpnext", strings.NewReader(`{"entity_type":"price","itemCode":"SKU-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":true`)
}

func TestWebhookIngestRejectsMissingEntityType(t *testing.T) {
	e, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/erpnext", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockReadRouteNotFoundThenFound(t *testing.T) {
	e, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stock/SKU-2", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ingestReq := httptest.NewRequest(http.MethodPost, "/api/webhooks/erpnext", strings.NewReader(`{"entity_type":"stock","itemCode":"SKU-2"}`))
	ingestReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ingestRec := httptest.NewRecorder()
	e.ServeHTTP(ingestRec, ingestReq)
	require.Equal(t, http.StatusOK, ingestRec.Code)

	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/stock/SKU-2", nil))
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "availability")
}

func TestSyncRouteReturnsDeltaAfterIngest(t *testing.T) {
	e, _, _ := newTestServer(t)

	ingestReq := httptest.NewRequest(http.MethodPost, "/api/webhooks/erpnext", strings.NewReader(`{"entity_type":"price","itemCode":"SKU-3"}`))
	ingestReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ingestRec := httptest.NewRecorder()
	e.ServeHTTP(ingestRec, ingestReq)
	require.Equal(t, http.StatusOK, ingestRec.Code)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/price?from=0&max=10", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SKU-3")
}

func TestMessageRoutesRejectMissingToken(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessageRoutesListAndDeleteWithValidToken(t *testing.T) {
	e, _, messages := newTestServer(t)

	msg, err := messages.Create(context.Background(), "user-1", "hi")
	require.NoError(t, err)

	token := signedToken(t, "user-1")

	listReq := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	listReq.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), msg.ID)

	deleteReq := httptest.NewRequest(http.MethodPost, "/api/messages/"+msg.ID+"/delete", nil)
	deleteReq.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	deleteRec := httptest.NewRecorder()
	e.ServeHTTP(deleteRec, deleteReq)
	assert.Equal(t, http.StatusOK, deleteRec.Code)
}

func TestCreateAndFetchUserRoute(t *testing.T) {
	e, _, _ := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"Username":"alice","Email":"a@example.com"}`))
	createReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	createRec := httptest.NewRecorder()
	e.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)
	assert.Contains(t, createRec.Body.String(), "alice")

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	getRec := httptest.NewRecorder()
	e.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/users/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, getRec.Code)
	assert.Contains(t, getRec.Body.String(), "a@example.com")
}

func TestUpdateUserStatusRejectsOtherUsersToken(t *testing.T) {
	e, _, _ := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"Username":"bob"}`))
	createReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	createRec := httptest.NewRecorder()
	e.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	token := signedToken(t, "someone-else")
	req := httptest.NewRequest(http.MethodPost, "/api/users/"+created.ID+"/status", strings.NewReader(`{"status":"registered"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
