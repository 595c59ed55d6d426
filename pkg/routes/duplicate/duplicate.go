package duplicate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/duplicategroup"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers duplicate detection and review routes
func Register(g *echo.Group) {
	g.POST("/detect", Detect)
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("/:id/merge", Merge)
}

// Detect runs a full duplicate detection pass over the directory
func Detect(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.Detect")
	defer span.End()

	ctx, svc, err := ectoinject.GetContext[*matching.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.RunDetection(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// List returns duplicate groups, highest score first
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	var status *string
	if v := c.QueryParam("status"); v != "" {
		status = &v
	}

	ctx, repo, err := ectoinject.GetContext[*duplicategroup.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.List(ctx, status, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Get returns a single duplicate group with its members
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.Get")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*duplicategroup.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	group, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, group)
}

// Merge resolves a duplicate group with the requested strategy
func Merge(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.Merge")
	defer span.End()

	var req models.MergeGroupRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var actor *string
	if v := appcontext.GetActor(ctx); v != "" {
		actor = &v
	}

	ctx, svc, err := ectoinject.GetContext[*merging.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := svc.Merge(ctx, c.Param("id"), req, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
