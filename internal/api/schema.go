package api

import (
	"net/http"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/schema"
)

type schemaResponse struct {
	Success     bool           `json:"success"`
	Fingerprint string         `json:"fingerprint"`
	Tables      []schema.Table `json:"tables"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Converter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleSchemaReader, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	model, err := deps.Converter.Schema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "failed to load database schema", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{
		Success:     true,
		Fingerprint: model.Fingerprint(),
		Tables:      model.Tables(),
	})
}

func requireAnyRole(r *http.Request, roles ...string) error {
	var err error
	for _, role := range roles {
		if err = requireRole(r, role); err == nil {
			return nil
		}
	}
	return err
}
