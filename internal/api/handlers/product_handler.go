package handlers

import (
	"context"
	"net/http"
	"strconv"

	"example.com/backstage/services/catalog/internal/catalog"
	"example.com/backstage/services/catalog/internal/models"
	"example.com/backstage/services/catalog/internal/repositories"
	"example.com/backstage/services/catalog/internal/services"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProductService is the catalog behaviour the handler exposes
type ProductService interface {
	Create(ctx context.Context, input models.ProductInput) (catalog.Snapshot, error)
	Update(ctx context.Context, id string, input models.ProductInput) (catalog.Snapshot, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (catalog.Snapshot, error)
	List(ctx context.Context, limit, offset int) (services.ProductPage, error)
	Search(ctx context.Context, query string) ([]catalog.Snapshot, error)
}

// ProductHandler handles product HTTP requests
type ProductHandler struct {
	service ProductService
	tracer  tracing.Tracer
}

// NewProductHandler creates a new product handler
func NewProductHandler(service ProductService, tracer tracing.Tracer) *ProductHandler {
	if tracer == nil {
		tracer = tracing.Disabled()
	}
	return &ProductHandler{
		service: service,
		tracer:  tracer,
	}
}

// HandleCreate creates a product
func (h *ProductHandler) HandleCreate(c *gin.Context) {
	var input models.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// HandleUpdate replaces a product's editable fields
func (h *ProductHandler) HandleUpdate(c *gin.Context) {
	var input models.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.service.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// HandleDelete removes a product
func (h *ProductHandler) HandleDelete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGet returns a single product
func (h *ProductHandler) HandleGet(c *gin.Context) {
	product, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// HandleList returns a page of products
func (h *ProductHandler) HandleList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleSearch runs a full-text product search
func (h *ProductHandler) HandleSearch(c *gin.Context) {
	results, err := h.service.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": results})
}

func (h *ProductHandler) fail(c *gin.Context, err error) {
	var verr *services.ValidationError

	switch {
	case errors.Is(err, repositories.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSearchUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Product request failed")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// RegisterRoutes registers the handler's routes
func (h *ProductHandler) RegisterRoutes(router gin.IRouter) {
	products := router.Group("/products")
	products.POST("", h.HandleCreate)
	products.GET("", h.HandleList)
	products.GET("/search", h.HandleSearch)
	products.GET("/:id", h.HandleGet)
	products.PUT("/:id", h.HandleUpdate)
	products.DELETE("/:id", h.HandleDelete)
}
