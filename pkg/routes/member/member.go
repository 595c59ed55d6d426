package member

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/appcontext"
	"github.com/Ramsey-B/fern/pkg/directory"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// MemberResponse is a written member plus any normalization issues the
// write degraded instead of rejecting.
type MemberResponse struct {
	Member *models.Member       `json:"member"`
	Issues []records.FieldIssue `json:"issues,omitempty"`
}

// Register registers member directory routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.PUT("/:id", Update)
	g.POST("/:id/verify", Verify)
	g.POST("/:id/deactivate", Deactivate)
	g.POST("/:id/restore", Restore)
	g.GET("/:id/history", History)
	g.GET("/:id/history/:field", FieldHistory)
}

// List returns members matching the query filters
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.List")
	defer span.End()

	filter := member.ListFilter{
		IncludeDuplicates: c.QueryParam("include_duplicates") == "true",
		IncludeDeleted:    c.QueryParam("include_deleted") == "true",
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	if v := c.QueryParam("status"); v != "" {
		filter.Status = &v
	}
	if v := c.QueryParam("batch_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "batch_year must be a number")
		}
		filter.BatchYear = &year
	}
	if v := c.QueryParam("chapter"); v != "" {
		filter.Chapter = &v
	}
	if v := c.QueryParam("category"); v != "" {
		filter.Category = &v
	}
	if v := c.QueryParam("city"); v != "" {
		filter.City = &v
	}

	ctx, repo, err := ectoinject.GetContext[*member.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Create builds a member from raw fields
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.Create")
	defer span.End()

	var req models.CreateMemberRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*directory.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	m, issues, err := svc.Create(ctx, req, actorPtr(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MemberResponse{Member: m, Issues: issues})
}

// Get returns a single member by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.Get")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*member.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	m, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// Update re-normalizes raw fields onto an existing member
func Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.Update")
	defer span.End()

	var req models.UpdateMemberRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*directory.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	m, issues, err := svc.Update(ctx, c.Param("id"), req, actorPtr(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MemberResponse{Member: m, Issues: issues})
}

// Verify marks a member as human-verified
func Verify(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.Verify")
	defer span.End()

	actor := appcontext.GetActor(ctx)
	if actor == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Actor header is required")
	}

	var req models.VerifyMemberRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, svc, err := ectoinject.GetContext[*directory.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	m, err := svc.Verify(ctx, c.Param("id"), req, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// Deactivate soft deletes a member
func Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.Deactivate")
	defer span.End()

	var req models.DeactivateMemberRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, svc, err := ectoinject.GetContext[*directory.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := svc.Deactivate(ctx, c.Param("id"), actorPtr(ctx), req.Reason); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Restore reactivates a soft-deleted member
func Restore(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.Restore")
	defer span.End()

	ctx, svc, err := ectoinject.GetContext[*directory.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	m, err := svc.Restore(ctx, c.Param("id"), actorPtr(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// History returns a member's change records, newest first
func History(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.History")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	var field *string
	if v := c.QueryParam("field"); v != "" {
		field = &v
	}

	ctx, repo, err := ectoinject.GetContext[*changelog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.ListForMember(ctx, c.Param("id"), field, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// FieldHistory reconstructs one field's history in chronological order
func FieldHistory(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "member_handler.FieldHistory")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*changelog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	changes, err := repo.FieldHistory(ctx, c.Param("id"), c.Param("field"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, changes)
}

// actorPtr returns the X-Actor header value, nil when absent.
func actorPtr(ctx context.Context) *string {
	if actor := appcontext.GetActor(ctx); actor != "" {
		return &actor
	}
	return nil
}
