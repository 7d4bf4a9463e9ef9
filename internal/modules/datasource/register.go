package datasource

import (
	"net/http"

	"github.com/VJean/velib/internal/modules/datasource/controller"
	"github.com/VJean/velib/internal/modules/datasource/service"
)

func RegisterFeature(mux *http.ServeMux, svc *service.Service) {
	datasourceController := controller.NewDatasourceController(svc)
	datasourceController.RegisterRoutes(mux)
}
