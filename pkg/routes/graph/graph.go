package graph

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/member"
	graphpkg "github.com/Ramsey-B/fern/pkg/graph"
)

// Handler handles graph query API endpoints
type Handler struct {
	network    *graphpkg.NetworkService
	projection *graphpkg.Projection
	logger     ectologger.Logger
}

// NewHandler creates a new graph handler
func NewHandler(network *graphpkg.NetworkService, projection *graphpkg.Projection, logger ectologger.Logger) *Handler {
	return &Handler{
		network:    network,
		projection: projection,
		logger:     logger,
	}
}

// Register registers the graph routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/members/:id/network", h.MemberNetwork)
	g.GET("/path", h.ConnectionPath)
	g.POST("/rebuild", h.Rebuild)
}

func (h *Handler) requireNetwork(c echo.Context) (*graphpkg.NetworkService, error) {
	// Prefer an explicitly provided service (useful for tests), but fall
	// back to DI-from-context, the standard pattern elsewhere.
	if h != nil && h.network != nil {
		return h.network, nil
	}

	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graphpkg.NetworkService](ctx)
	if err != nil || svc == nil {
		// 503 because the graph projection is an optional dependency.
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph service unavailable")
	}
	return svc, nil
}

func (h *Handler) requireProjection(c echo.Context) (*graphpkg.Projection, error) {
	if h != nil && h.projection != nil {
		return h.projection, nil
	}

	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graphpkg.Projection](ctx)
	if err != nil || svc == nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph service unavailable")
	}
	return svc, nil
}

// MemberNetwork returns a member's neighborhood in the directory graph
// @Summary Member network
// @Description Return the chapters, companies, categories and members within N hops of a member
// @Tags Graph
// @Produce json
// @Param id path string true "Member ID"
// @Param hops query int false "Number of hops (default 2)"
// @Success 200 {object} graphpkg.QueryResult
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/graph/members/{id}/network [get]
func (h *Handler) MemberNetwork(c echo.Context) error {
	ctx := c.Request().Context()

	svc, err := h.requireNetwork(c)
	if err != nil {
		return err
	}

	memberID := c.Param("id")
	if memberID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "member id is required")
	}

	hops := 0
	if hopsStr := c.QueryParam("hops"); hopsStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("hops", &parsed).BindError(); err == nil && parsed > 0 {
			hops = parsed
		}
	}

	result, err := svc.MemberNetwork(ctx, memberID, hops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ConnectionPath finds the shortest path between two members
// @Summary Connection path
// @Description Find the shortest path between two members through shared chapters, companies and categories
// @Tags Graph
// @Produce json
// @Param from query string true "From member ID"
// @Param to query string true "To member ID"
// @Param max_hops query int false "Maximum hops (default 6)"
// @Success 200 {object} graphpkg.QueryResult
// @Failure 400 {object} httperror.HTTPError
// @Router /api/v1/graph/path [get]
func (h *Handler) ConnectionPath(c echo.Context) error {
	ctx := c.Request().Context()

	svc, err := h.requireNetwork(c)
	if err != nil {
		return err
	}

	fromID := c.QueryParam("from")
	toID := c.QueryParam("to")
	if fromID == "" || toID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "from and to parameters are required")
	}

	maxHops := 0
	if hopsStr := c.QueryParam("max_hops"); hopsStr != "" {
		var parsed int
		if err := echo.QueryParamsBinder(c).Int("max_hops", &parsed).BindError(); err == nil && parsed > 0 {
			maxHops = parsed
		}
	}

	result, err := svc.ConnectionPath(ctx, fromID, toID, maxHops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Rebuild reprojects every searchable member into the graph
// @Summary Rebuild the graph projection
// @Description Resync all active members and their affiliations from storage
// @Tags Graph
// @Produce json
// @Success 200 {object} map[string]int
// @Failure 503 {object} httperror.HTTPError
// @Router /api/v1/graph/rebuild [post]
func (h *Handler) Rebuild(c echo.Context) error {
	ctx := c.Request().Context()

	projection, err := h.requireProjection(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*member.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	members, err := repo.ListSearchable(ctx)
	if err != nil {
		return err
	}

	if err := projection.BatchSyncMembers(ctx, members); err != nil {
		return err
	}

	if h.logger != nil {
		h.logger.WithContext(ctx).WithFields(map[string]any{"member_count": len(members)}).Info("Rebuilt graph projection")
	}

	return c.JSON(http.StatusOK, map[string]int{"synced_members": len(members)})
}
