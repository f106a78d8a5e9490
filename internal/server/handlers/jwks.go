package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/eid-tools/dds-hashcode/internal/api"
)

// HandleJWKS godoc
//
//	@Summary		Get JWK set
//	@Description	Returns the public key of the signing token configured on the server.
//	@Description
//	@Description	Use it to check which key signs when POST /v1/sessions/{sessionID}/signatures/token is used.
//	@Description	Returns 404 when no token is configured.
//	@Tags			Common
//
//	@Success		200	{object}	JWKSResponse	"JWK set"
//	@Failure		404	{object}	api.ErrorResponse	"No signing token configured"
//
//	@Router			/.well-known/jwks.json [get]
func HandleJWKS(jwkSet jwk.Set) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwkSet == nil {
			api.RespondWithErrorResponse(w, r, api.NewNotFoundError("no signing token is configured"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		if err := json.NewEncoder(w).Encode(jwkSet); err != nil {
			http.Error(w, "Failed to encode JWK set", http.StatusInternalServerError)
			return
		}
	}
}

// JWKSResponse is used for documentation as the jwk.Set interface type cannot be described.
type JWKSResponse struct {
	Keys []map[string]any `json:"keys"`
}
