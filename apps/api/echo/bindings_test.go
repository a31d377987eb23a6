package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/eminingcampus/campus/core"
)

func Test_bindOrdering(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []core.DBOrdering
	}{
		{name: "none", query: "", want: nil},
		{name: "fields", query: "ordering=title,-price", want: []core.DBOrdering{
			{Field: "title", Ascending: true},
			{Field: "price"},
		}},
		{name: "blank and repeated fields", query: "ordering=-price,,price,-", want: []core.DBOrdering{{Field: "price"}}},
		{name: "preset", query: "sort=price_low", want: []core.DBOrdering{{Field: "price", Ascending: true}}},
		{name: "ordering wins over preset", query: "sort=price_low&ordering=-created_at", want: []core.DBOrdering{{Field: "created_at"}}},
		{name: "unknown preset", query: "sort=popular", want: nil},
	}

	app := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/courses?"+tt.query, nil)
			ctx := app.NewContext(req, httptest.NewRecorder())
			assert.Equal(t, tt.want, bindOrdering(ctx))
		})
	}
}
