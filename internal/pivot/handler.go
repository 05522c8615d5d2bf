package pivot

import (
	"errors"
	"net/http"
	"strconv"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
	"github.com/crosstab-lab/crosstab/internal/catalog"
	httperr "github.com/crosstab-lab/crosstab/internal/core/errors"
	"github.com/crosstab-lab/crosstab/internal/engine"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all pivot API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/pivot/compute", s.HandleComputePivot)
	r.POST("/v1/pivot/drill", s.HandleDrill)
	r.GET("/v1/datasets", s.HandleListDatasets)
	r.GET("/v1/datasets/:dataset/fields", s.HandleListFields)
	r.GET("/v1/datasets/:dataset/fields/:field/values", s.HandleListFieldValues)
}

// HandleComputePivot handles POST /v1/pivot/compute.
func (s *Service) HandleComputePivot(c *gin.Context) {
	var req v1.PivotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid pivot request body",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.ComputePivot(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDrill handles POST /v1/pivot/drill.
func (s *Service) HandleDrill(c *gin.Context) {
	var req v1.DrillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid drill request body",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.Drill(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListDatasets handles GET /v1/datasets.
func (s *Service) HandleListDatasets(c *gin.Context) {
	datasets, err := s.ListDatasets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, datasets)
}

// HandleListFields handles GET /v1/datasets/:dataset/fields.
func (s *Service) HandleListFields(c *gin.Context) {
	fields, err := s.ListFields(c.Request.Context(), c.Param("dataset"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

// HandleListFieldValues handles GET /v1/datasets/:dataset/fields/:field/values.
// Query parameter: limit.
func (s *Service) HandleListFieldValues(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidParameter,
				Message:   "Invalid limit parameter",
			})
			return
		}
		limit = parsed
	}

	values, err := s.ListFieldValues(c.Request.Context(), c.Param("dataset"), c.Param("field"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, values)
}

// writeError maps pipeline errors to HTTP statuses and stable kind tags.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	errorType := httperr.HttpInternalError

	switch {
	case errors.Is(err, catalog.ErrUnknownDataset):
		status = http.StatusNotFound
		errorType = httperr.HttpUnknownDatasetError
	case errors.Is(err, catalog.ErrUnknownField):
		status = http.StatusBadRequest
		errorType = httperr.HttpUnknownFieldError
	case errors.Is(err, ErrInvalidFilterValue):
		status = http.StatusBadRequest
		errorType = httperr.HttpInvalidFilterValue
	case errors.Is(err, ErrCacheKeyNotFound):
		status = http.StatusNotFound
		errorType = httperr.HttpCacheKeyNotFound
	case errors.Is(err, ErrResultTooLarge):
		status = http.StatusRequestEntityTooLarge
		errorType = httperr.HttpResultTooLarge
	case errors.Is(err, ErrQueryCompilation):
		errorType = httperr.HttpQueryCompilationFailed
	case errors.Is(err, engine.ErrQueryFailed):
		errorType = httperr.HttpQueryExecutionFailed
	}

	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   "Pivot request failed",
		Details:   err.Error(),
	})
}
