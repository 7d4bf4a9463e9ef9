package controller

import (
	"context"
	"net/http"

	"github.com/VJean/velib/internal/modules/datasource/types"
)

// DatasourceService is what the SimpleJSON routes need from the service layer.
type DatasourceService interface {
	Metrics() []string
	TagKeys() []types.TagKey
	TagValues(ctx context.Context, key string) ([]types.TagValue, error)
	Query(ctx context.Context, req types.QueryRequest) ([]types.TimeSeries, error)
}

type DatasourceController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type datasourceControllerImpl struct {
	service DatasourceService
}

func NewDatasourceController(service DatasourceService) DatasourceController {
	return &datasourceControllerImpl{service: service}
}

func (c *datasourceControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleRoot)
	mux.HandleFunc("POST /search", c.handleSearch)
	mux.HandleFunc("POST /query", c.handleQuery)
	mux.HandleFunc("POST /annotations", c.handleAnnotations)
	mux.HandleFunc("POST /tag-keys", c.handleTagKeys)
	mux.HandleFunc("POST /tag-values", c.handleTagValues)
}
