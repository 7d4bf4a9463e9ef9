package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/VJean/velib/internal/modules/datasource/service"
	"github.com/VJean/velib/internal/modules/datasource/types"
	"github.com/VJean/velib/internal/utils"
)

const maxBodyBytes = 1 << 20

func (c *datasourceControllerImpl) handleRoot(w http.ResponseWriter, r *http.Request) {
	utils.WriteText(w, http.StatusOK, "Let's roll!")
}

func (c *datasourceControllerImpl) handleSearch(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Metrics())
}

func (c *datasourceControllerImpl) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req types.QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := c.service.Query(r.Context(), req)
	if errors.Is(err, service.ErrBadRequest) {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load series")
		return
	}
	utils.WriteJSON(w, http.StatusOK, series)
}

func (c *datasourceControllerImpl) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, []any{})
}

func (c *datasourceControllerImpl) handleTagKeys(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.TagKeys())
}

func (c *datasourceControllerImpl) handleTagValues(w http.ResponseWriter, r *http.Request) {
	var req types.TagValuesRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	values, err := c.service.TagValues(r.Context(), req.Key)
	if err != nil {
		slog.Error("tag values failed", "key", req.Key, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load tag values")
		return
	}
	utils.WriteJSON(w, http.StatusOK, values)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
