package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/crypto"
	"github.com/Wynand91/fedauth/internal/domain"
	"github.com/Wynand91/fedauth/internal/repository"
)

// AdminHandler exposes provider registry administration. All routes sit
// behind the superuser gate.
type AdminHandler struct {
	Federated repository.FederatedProviderRepo
	Generic   repository.GenericProviderRepo
	Cipher    *crypto.Cipher
	Logger    *zap.Logger
}

type providerRequest struct {
	AuthEndpoint  string `json:"auth_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	UserEndpoint  string `json:"user_endpoint"`
	JWKSEndpoint  string `json:"jwks_endpoint"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	SignAlgo      string `json:"sign_algo"`
	Scopes        string `json:"scopes"`
}

type providerResponse struct {
	AuthEndpoint  string `json:"auth_endpoint,omitempty"`
	TokenEndpoint string `json:"token_endpoint,omitempty"`
	UserEndpoint  string `json:"user_endpoint,omitempty"`
	JWKSEndpoint  string `json:"jwks_endpoint,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	HasSecret     bool   `json:"has_client_secret"`
	SignAlgo      string `json:"sign_algo,omitempty"`
	Scopes        string `json:"scopes,omitempty"`
}

// toConfig validates the request and builds the record config. The client
// secret is sealed immediately; plaintext never reaches the repository.
func (h *AdminHandler) toConfig(req providerRequest) (domain.ProviderConfig, error) {
	if req.SignAlgo != "" && !domain.ValidSignAlgo(req.SignAlgo) {
		return domain.ProviderConfig{}, errors.New("sign_algo must be one of HS256, RS256, ES256")
	}
	cfg := domain.ProviderConfig{
		AuthEndpoint:  req.AuthEndpoint,
		TokenEndpoint: req.TokenEndpoint,
		UserEndpoint:  req.UserEndpoint,
		JWKSEndpoint:  req.JWKSEndpoint,
		ClientID:      req.ClientID,
		SignAlgo:      req.SignAlgo,
		Scopes:        req.Scopes,
	}
	if req.ClientSecret != "" {
		sealed, err := h.Cipher.Encrypt([]byte(req.ClientSecret))
		if err != nil {
			return domain.ProviderConfig{}, err
		}
		cfg.ClientSecretCipher = sealed
	}
	return cfg, nil
}

func toResponse(cfg domain.ProviderConfig) providerResponse {
	return providerResponse{
		AuthEndpoint:  cfg.AuthEndpoint,
		TokenEndpoint: cfg.TokenEndpoint,
		UserEndpoint:  cfg.UserEndpoint,
		JWKSEndpoint:  cfg.JWKSEndpoint,
		ClientID:      cfg.ClientID,
		HasSecret:     len(cfg.ClientSecretCipher) > 0,
		SignAlgo:      cfg.SignAlgo,
		Scopes:        cfg.Scopes,
	}
}

// ListFederated returns every federated provider record.
func (h *AdminHandler) ListFederated(c *gin.Context) {
	recs, err := h.Federated.List(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{"domain": rec.Domain, "config": toResponse(rec.ProviderConfig)})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

type federatedRequest struct {
	Domain string `json:"domain"`
	providerRequest
}

// CreateFederated registers a provider for an email domain.
func (h *AdminHandler) CreateFederated(c *gin.Context) {
	var req federatedRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Domain) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "A domain is required."})
		return
	}
	cfg, err := h.toConfig(req.providerRequest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	rec, err := h.Federated.Create(c.Request.Context(), domain.FederatedProvider{
		Domain:         strings.ToLower(strings.TrimSpace(req.Domain)),
		ProviderConfig: cfg,
	})
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"domain": rec.Domain, "config": toResponse(rec.ProviderConfig)})
}

// UpdateFederated replaces the record for an email domain.
func (h *AdminHandler) UpdateFederated(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid JSON body."})
		return
	}
	cfg, err := h.toConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	rec, err := h.Federated.Update(c.Request.Context(), domain.FederatedProvider{
		Domain:         c.Param("domain"),
		ProviderConfig: cfg,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown domain."})
			return
		}
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": rec.Domain, "config": toResponse(rec.ProviderConfig)})
}

// ListGeneric returns every generic provider record.
func (h *AdminHandler) ListGeneric(c *gin.Context) {
	recs, err := h.Generic.List(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{"alias": rec.Alias, "config": toResponse(rec.ProviderConfig)})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

type genericRequest struct {
	Alias string `json:"alias"`
	providerRequest
}

// CreateGeneric registers a provider under an alias.
func (h *AdminHandler) CreateGeneric(c *gin.Context) {
	var req genericRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Alias) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "An alias is required."})
		return
	}
	cfg, err := h.toConfig(req.providerRequest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	rec, err := h.Generic.Create(c.Request.Context(), domain.GenericProvider{
		Alias:          strings.ToLower(strings.TrimSpace(req.Alias)),
		ProviderConfig: cfg,
	})
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alias": rec.Alias, "config": toResponse(rec.ProviderConfig)})
}

// UpdateGeneric replaces the record for an alias.
func (h *AdminHandler) UpdateGeneric(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid JSON body."})
		return
	}
	cfg, err := h.toConfig(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	rec, err := h.Generic.Update(c.Request.Context(), domain.GenericProvider{
		Alias:          c.Param("alias"),
		ProviderConfig: cfg,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown alias."})
			return
		}
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alias": rec.Alias, "config": toResponse(rec.ProviderConfig)})
}

func (h *AdminHandler) serverError(c *gin.Context, err error) {
	h.Logger.Error("provider admin request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Registry unavailable."})
}
