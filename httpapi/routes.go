package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/refresh"
	"erpcache.eve.dev/security"
	"erpcache.eve.dev/syncapi"
	"erpcache.eve.dev/users"
	"erpcache.eve.dev/version"
	"erpcache.eve.dev/webhook"

	"github.com/labstack/echo/v4"
)

// Dependencies are the services routes dispatch into. httpapi itself
// holds no business logic; it only binds requests and frames responses.
type Dependencies struct {
	Ingestor   *webhook.Ingestor
	Sync       *syncapi.Service
	Cache      *cache.Layer
	Enumerator *refresh.Enumerator
	Runner     *refresh.Runner
	Users      *users.Store
	Messages   *users.Messages
	JWTSecret  string
}

// RegisterRoutes binds the six core endpoints and the two message routes
// to e.
func RegisterRoutes(e *echo.Echo, deps Dependencies) {
	e.GET("/healthz", handleHealthz)
	e.GET("/version", handleVersion)

	e.POST("/api/webhooks/erpnext", handleWebhookIngest(deps))
	e.POST("/api/webhooks/price-update", handlePriceUpdate(deps))
	e.GET("/api/sync/:family", handleSync(deps))
	e.GET("/api/stock/:itemCode", handleStockRead(deps))
	e.GET("/api/stock/warehouses/reference", handleWarehouseReference(deps))
	e.POST("/api/stock/update-all", handleUpdateAll(deps))

	messages := e.Group("/api/messages", security.JWTMiddleware(deps.JWTSecret))
	messages.GET("", handleListMessages(deps))
	messages.POST("/:id/delete", handleDeleteMessage(deps))

	e.POST("/api/users", handleCreateUser(deps))
	e.GET("/api/users/:id", handleGetUser(deps))

	usersGroup := e.Group("/api/users", security.JWTMiddleware(deps.JWTSecret))
	usersGroup.POST("/:id/status", handleUpdateUserStatus(deps))
}

func handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion serves GET /version. With no query string it returns the
// full build info; given ?dependency=<module path> it narrows the response
// to that single dependency's version, 404ing if erpcache wasn't built
// against it.
func handleVersion(c echo.Context) error {
	if modulePath := c.QueryParam("dependency"); modulePath != "" {
		dep := version.GetDependency(modulePath)
		if dep == nil {
			return apierrors.NotFoundf("version: dependency %q not found in build info", modulePath)
		}
		return c.JSON(http.StatusOK, dep)
	}
	return c.JSON(http.StatusOK, version.GetBuildInfo())
}

type webhookRequest struct {
	EntityType string `json:"entity_type"`
	ItemCode   string `json:"itemCode"`
}

type webhookResponse struct {
	Success  bool   `json:"success"`
	Changed  bool   `json:"changed"`
	Version  int64  `json:"version"`
	StreamID string `json:"streamId,omitempty"`
}

func handleWebhookIngest(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req webhookRequest
		if err := c.Bind(&req); err != nil {
			return apierrors.Validationf("httpapi: bad webhook payload: %v", err)
		}
		if req.EntityType == "" {
			return apierrors.Validationf("httpapi: entity_type is required")
		}

		result, err := deps.Ingestor.Ingest(c.Request().Context(), req.EntityType, req.ItemCode)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, webhookResponse{
			Success: true, Changed: result.Changed, Version: result.Version, StreamID: result.StreamID,
		})
	}
}

// priceUpdateRequest is the legacy direct price write payload; it echoes
// its own fields back on success, per spec.md §6.
type priceUpdateRequest struct {
	ErpnextName     string  `json:"erpnextName"`
	SizeUnit        string  `json:"sizeUnit"`
	Price           float64 `json:"price"`
	ItemCode        string  `json:"itemCode"`
	InvalidateCache bool    `json:"invalidateCache"`
}

func handlePriceUpdate(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req priceUpdateRequest
		if err := c.Bind(&req); err != nil {
			return apierrors.Validationf("httpapi: bad price-update payload: %v", err)
		}
		itemCode := req.ItemCode
		if itemCode == "" {
			itemCode = req.ErpnextName
		}
		if itemCode == "" {
			return apierrors.Validationf("httpapi: itemCode or erpnextName is required")
		}

		result, err := deps.Ingestor.Ingest(c.Request().Context(), "price", itemCode)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"changed":   result.Changed,
			"version":   result.Version,
			"streamId":  result.StreamID,
			"itemCode":  itemCode,
			"sizeUnit":  req.SizeUnit,
			"price":     req.Price,
		})
	}
}

func handleSync(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		family := cache.Family(c.Param("family"))
		from := c.QueryParam("from")
		if from == "" {
			from = "0"
		}

		maxEntries := int64(100)
		if raw := c.QueryParam("max"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				return apierrors.Validationf("httpapi: bad max param %q", raw)
			}
			maxEntries = parsed
		}

		resp, err := deps.Sync.Pull(c.Request().Context(), family, from, maxEntries)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func handleStockRead(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		itemCode := c.Param("itemCode")
		raw, err := deps.Cache.ReadSimple(c.Request().Context(), cache.FamilyStock, itemCode)
		if err != nil {
			return err
		}
		if raw == nil {
			return apierrors.NotFoundf("httpapi: no cached stock for %s", itemCode)
		}

		var availability []int
		if err := json.Unmarshal(raw, &availability); err != nil {
			return apierrors.Internalf("httpapi: corrupt stock entry for %s: %v", itemCode, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"availability": availability})
	}
}

func handleWarehouseReference(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		warehouses, err := deps.Enumerator.WarehouseReference(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"warehouses": warehouses,
			"count":      len(warehouses),
		})
	}
}

func handleUpdateAll(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		items, err := deps.Enumerator.Items(ctx)
		if err != nil {
			return err
		}

		summaries := deps.Runner.Run(ctx, items)
		deps.Runner.LogSummaries(summaries)
		return c.JSON(http.StatusOK, summaries)
	}
}

func handleListMessages(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := security.UserFromContext(c)
		if err != nil {
			return err
		}

		limit := int64(0)
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return apierrors.Validationf("httpapi: bad limit param %q", raw)
			}
			limit = parsed
		}

		list, err := deps.Messages.List(c.Request().Context(), claims.UserID, limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"entries": list})
	}
}

func handleDeleteMessage(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := security.UserFromContext(c)
		if err != nil {
			return err
		}

		messageID := c.Param("id")
		if err := deps.Messages.Delete(c.Request().Context(), claims.UserID, messageID); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
	}
}

func handleCreateUser(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in users.CreateUserInput
		if err := c.Bind(&in); err != nil {
			return apierrors.Validationf("httpapi: bad user payload: %v", err)
		}

		user, err := deps.Users.CreateUser(c.Request().Context(), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, user.Public())
	}
}

func handleGetUser(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := deps.Users.GetUser(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}
		if user == nil {
			return apierrors.NotFoundf("httpapi: no user %s", c.Param("id"))
		}
		return c.JSON(http.StatusOK, user.Public())
	}
}

type updateUserStatusRequest struct {
	Status users.Status `json:"status"`
}

func handleUpdateUserStatus(deps Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := security.UserFromContext(c)
		if err != nil {
			return err
		}
		if claims.UserID != c.Param("id") {
			return apierrors.Forbiddenf("httpapi: cannot change another user's status")
		}

		var req updateUserStatusRequest
		if err := c.Bind(&req); err != nil {
			return apierrors.Validationf("httpapi: bad status payload: %v", err)
		}

		user, err := deps.Users.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, user.Public())
	}
}
