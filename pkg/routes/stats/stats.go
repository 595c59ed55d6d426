package stats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/duplicategroup"
	"github.com/Ramsey-B/fern/internal/repositories/importbatch"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const recentImportCount = 5

// Register registers data quality and import stats routes
func Register(g *echo.Group) {
	g.GET("", Overview)
	g.GET("/batches", ListBatches)
	g.GET("/batches/:id", GetBatch)
}

// Overview returns the directory-wide data quality snapshot
func Overview(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "stats_handler.Overview")
	defer span.End()

	ctx, members, err := ectoinject.GetContext[*member.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, groups, err := ectoinject.GetContext[*duplicategroup.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, changes, err := ectoinject.GetContext[*changelog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, batches, err := ectoinject.GetContext[*importbatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	memberStats, err := members.Stats(ctx)
	if err != nil {
		return err
	}
	groupCounts, err := groups.CountByStatus(ctx)
	if err != nil {
		return err
	}
	changesLastWeek, err := changes.CountSince(ctx, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	recent, err := batches.Recent(ctx, recentImportCount)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.DirectoryStats{
		Members:                 *memberStats,
		OpenDuplicateGroups:     groupCounts[models.DuplicateGroupStatusOpen] + groupCounts[models.DuplicateGroupStatusReview],
		ResolvedDuplicateGroups: groupCounts[models.DuplicateGroupStatusMerged] + groupCounts[models.DuplicateGroupStatusDismissed],
		ChangesLastWeek:         changesLastWeek,
		RecentImports:           recent,
		GeneratedAt:             time.Now().UTC(),
	})
}

// ListBatches returns import batches, newest first
func ListBatches(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "stats_handler.ListBatches")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*importbatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.List(ctx, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetBatch returns one import batch with its counters
func GetBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "stats_handler.GetBatch")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*importbatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	batch, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batch)
}
