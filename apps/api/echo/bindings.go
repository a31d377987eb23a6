package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eminingcampus/campus/core"
)

const (
	orderingParam = "ordering"
	sortParam     = "sort"
)

// sortPresets are the named sorts offered by the course catalog pages.
var sortPresets = map[string]core.DBOrdering{
	"newest":     {Field: "created_at"},
	"oldest":     {Field: "created_at", Ascending: true},
	"price_low":  {Field: "price", Ascending: true},
	"price_high": {Field: "price"},
	"title":      {Field: "title", Ascending: true},
}

// bindOrdering reads `?ordering=field,-field` and falls back to a `?sort=` preset.
// A field is only kept the first time it appears. Services decide which fields are allowed.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	params := ctx.QueryParams()

	raw := strings.TrimSpace(params.Get(orderingParam))
	if raw == "" {
		if preset, ok := sortPresets[params.Get(sortParam)]; ok {
			return []core.DBOrdering{preset}
		}
		return nil
	}

	var (
		orderings []core.DBOrdering
		seen      = make(map[string]bool)
	)
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}
