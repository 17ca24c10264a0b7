package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=name,-created_at` ("-" for descending).
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindUserFilter reads `search`, `role` (repeatable), `blocked`, `created_from` and `created_to`.
func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	var (
		filter  user.QueryFilter
		roles   []string
		blocked string
	)
	err := echo.QueryParamsBinder(ctx).
		String("search", &filter.Search).
		Strings("role", &roles).
		String("blocked", &blocked).
		Time("created_from", &filter.CreatedFrom, time.RFC3339).
		Time("created_to", &filter.CreatedTo, time.RFC3339).
		BindError()
	if err != nil {
		return filter, err
	}

	for _, r := range roles {
		filter.Roles = append(filter.Roles, user.Role(r))
	}
	if blocked != "" {
		b, err := strconv.ParseBool(blocked)
		if err != nil {
			return filter, err
		}
		filter.Blocked = &b
	}
	return filter, nil
}
