package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
	httpmiddleware "github.com/pmahajan3105/releasenote-sub004/internal/http/middleware"
	"github.com/pmahajan3105/releasenote-sub004/internal/service/integrations"
)

// IntegrationHandler exposes the tracker connection endpoints.
type IntegrationHandler struct {
	Service    integrations.Service
	AppBaseURL string
	Logger     *zap.Logger
}

// NewIntegrationHandler creates the handler set.
func NewIntegrationHandler(svc integrations.Service, appBaseURL string, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{Service: svc, AppBaseURL: appBaseURL, Logger: logger}
}

// List returns every supported provider with its connection status.
func (h *IntegrationHandler) List(c *gin.Context) {
	claims, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	statuses, err := h.Service.ListIntegrations(c.Request.Context(), claims.OrgID)
	if err != nil {
		h.log().Error("list integrations", zap.Int64("org_id", claims.OrgID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not list integrations."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": statuses})
}

// Connect prepares the provider authorization URL and redirects the browser
// to it. The anti-forgery state is durable before the redirect is written.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	claims, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	out, err := h.Service.StartAuthorization(c.Request.Context(), integrations.StartAuthorizationInput{
		OrgID:    claims.OrgID,
		UserID:   claims.UserID,
		Provider: c.Param("provider"),
	})
	if err != nil {
		h.respondServiceError(c, c.Param("provider"), err)
		return
	}
	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// Callback completes the provider redirect. All failure modes land back on
// the settings page with a machine-readable error code so the UI can explain
// what happened; tokens and codes never appear in that URL.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	claims, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		respondUnauthorized(c)
		return
	}

	providerName := c.Param("provider")
	if denied := c.Query("error"); denied != "" {
		h.log().Warn("authorization denied by provider",
			zap.String("provider", providerName),
			zap.String("provider_error", denied))
		h.redirectSettings(c, url.Values{"error": {"access_denied"}})
		return
	}

	result, err := h.Service.HandleCallback(c.Request.Context(), integrations.CallbackInput{
		OrgID:    claims.OrgID,
		UserID:   claims.UserID,
		Provider: providerName,
		Code:     c.Query("code"),
		State:    c.Query("state"),
	})
	if err != nil {
		h.log().Warn("oauth callback failed",
			zap.String("provider", providerName),
			zap.Int64("org_id", claims.OrgID),
			zap.Error(err))
		h.redirectSettings(c, url.Values{"error": {callbackErrorCode(err)}})
		return
	}

	h.redirectSettings(c, url.Values{"connected": {string(result.Provider)}})
}

// Disconnect removes the org's connection for one provider.
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	claims, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		respondUnauthorized(c)
		return
	}
	provider, ok := integration.ParseProvider(c.Param("provider"))
	if !ok {
		respondUnknownProvider(c)
		return
	}

	if err := h.Service.Disconnect(c.Request.Context(), claims.OrgID, provider); err != nil {
		h.log().Error("disconnect integration",
			zap.Int64("org_id", claims.OrgID),
			zap.String("provider", string(provider)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not disconnect."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": provider})
}

// Sync pulls recent changes from the provider and refreshes the ticket cache.
func (h *IntegrationHandler) Sync(c *gin.Context) {
	claims, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		respondUnauthorized(c)
		return
	}
	provider, ok := integration.ParseProvider(c.Param("provider"))
	if !ok {
		respondUnknownProvider(c)
		return
	}

	items, err := h.Service.SyncChanges(c.Request.Context(), claims.OrgID, provider)
	if err != nil {
		h.respondServiceError(c, string(provider), err)
		return
	}

	resp := make([]changeItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toChangeItemResponse(item))
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider, "count": len(resp), "items": resp})
}

// Changes serves the cached ticket rows for one provider without touching
// the provider API.
func (h *IntegrationHandler) Changes(c *gin.Context) {
	claims, ok := httpmiddleware.GetIdentity(c)
	if !ok {
		respondUnauthorized(c)
		return
	}
	provider, ok := integration.ParseProvider(c.Param("provider"))
	if !ok {
		respondUnknownProvider(c)
		return
	}

	rows, err := h.Service.CachedChanges(c.Request.Context(), claims.OrgID, provider)
	if err != nil {
		h.log().Error("list cached changes",
			zap.Int64("org_id", claims.OrgID),
			zap.String("provider", string(provider)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not list changes."})
		return
	}

	resp := make([]cachedChangeResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toCachedChangeResponse(row))
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider, "count": len(resp), "items": resp})
}

func (h *IntegrationHandler) respondServiceError(c *gin.Context, provider string, err error) {
	switch {
	case errors.Is(err, integration.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Unknown provider: " + provider + "."})
	case errors.Is(err, integration.ErrNotConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": "not_configured", "error_description": "Provider " + provider + " is not configured."})
	case errors.Is(err, integration.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "not_connected", "error_description": "Provider " + provider + " is not connected."})
	case errors.Is(err, integration.ErrExchangeFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "exchange_failed", "error_description": "Provider token exchange failed."})
	default:
		h.log().Error("integration request failed", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unexpected error."})
	}
}

func (h *IntegrationHandler) redirectSettings(c *gin.Context, query url.Values) {
	target := h.AppBaseURL + "/settings/integrations"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

func (h *IntegrationHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

// callbackErrorCode maps callback failures to the codes the settings page
// understands. Everything unexpected collapses to server_error.
func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, integration.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, integration.ErrExpiredState):
		return "expired_state"
	case errors.Is(err, integration.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, integration.ErrExchangeFailed):
		return "exchange_failed"
	case errors.Is(err, integration.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "server_error"
	}
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Missing session."})
}

func respondUnknownProvider(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Unknown provider."})
}

type changeItemResponse struct {
	Provider    integration.Provider   `json:"provider"`
	ExternalID  string                 `json:"external_id"`
	Type        integration.ChangeType `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Status      string                 `json:"status,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Assignee    string                 `json:"assignee,omitempty"`
	Labels      []string               `json:"labels,omitempty"`
	CreatedAt   *time.Time             `json:"created_at,omitempty"`
	UpdatedAt   *time.Time             `json:"updated_at,omitempty"`
}

func toChangeItemResponse(item integration.ChangeItem) changeItemResponse {
	return changeItemResponse{
		Provider:    item.Provider,
		ExternalID:  item.ExternalID,
		Type:        item.Type,
		Title:       item.Title,
		Description: item.Description,
		Status:      item.Status,
		URL:         item.URL,
		Assignee:    item.Assignee,
		Labels:      item.Labels,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

type cachedChangeResponse struct {
	Provider  integration.Provider `json:"provider"`
	TicketID  string               `json:"ticket_id"`
	Title     string               `json:"title"`
	Status    string               `json:"status,omitempty"`
	Assignee  string               `json:"assignee,omitempty"`
	URL       string               `json:"url,omitempty"`
	CachedAt  time.Time            `json:"cached_at"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
}

func toCachedChangeResponse(row integration.TicketCacheRow) cachedChangeResponse {
	return cachedChangeResponse{
		Provider:  row.IntegrationType,
		TicketID:  row.TicketID,
		Title:     row.Title,
		Status:    row.Status,
		Assignee:  row.Assignee,
		URL:       row.URL,
		CachedAt:  row.CachedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
