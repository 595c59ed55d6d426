package search

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/ranking"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers search routes
func Register(g *echo.Group) {
	g.POST("", Search)
	g.GET("", SearchByParams)
}

// Search runs a free-text directory search
func Search(c echo.Context) error {
	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return runSearch(c, req)
}

// SearchByParams runs the same search from query parameters
func SearchByParams(c echo.Context) error {
	req := models.SearchRequest{Query: c.QueryParam("q")}
	if req.Query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "q query parameter is required")
	}
	req.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return runSearch(c, req)
}

func runSearch(c echo.Context, req models.SearchRequest) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "search_handler.Search")
	defer span.End()

	// The cache is optional; a miss or an unconfigured cache both fall
	// through to a full ranking pass.
	ctx, cache, _ := ectoinject.GetContext[*redis.SearchCache](ctx)
	if cache != nil {
		if cached := cache.Get(ctx, req.Query, req.Limit); cached != nil {
			return c.JSON(http.StatusOK, cached)
		}
	}

	ctx, parser, err := ectoinject.GetContext[*query.Parser](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, ranker, err := ectoinject.GetContext[*ranking.Ranker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	ctx, repo, err := ectoinject.GetContext[*member.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	start := time.Now()
	parsed := parser.Parse(ctx, req.Query)

	pool, err := repo.ListSearchable(ctx)
	if err != nil {
		return err
	}

	ranked := ranker.Rank(ctx, parsed, pool, req.Limit)
	metrics.RecordSearch(parsed.Intent, time.Since(start).Seconds())

	response := &models.SearchResponse{
		Query:      *parsed,
		Items:      ranked,
		TotalCount: len(ranked),
	}
	if len(ranked) == 0 {
		response.Suggestion = suggestion(parsed)
	}

	if cache != nil {
		cache.Put(ctx, req.Query, req.Limit, response)
	}
	return c.JSON(http.StatusOK, response)
}

// suggestion tells the caller how to broaden a query that matched
// nothing.
func suggestion(parsed *models.ParsedQuery) string {
	switch {
	case parsed.Intent == models.IntentServiceRequest && parsed.Location != nil:
		return "No members matched. Try dropping the location or using a broader category."
	case parsed.Intent == models.IntentServiceRequest:
		return "No members matched. Try a broader category or a related specialization."
	case len(parsed.NameTokens) > 0:
		return "No members matched. Try fewer name terms or check the spelling."
	default:
		return "No members matched. Try broader terms."
	}
}
