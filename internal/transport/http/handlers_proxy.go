package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	gatewayModels "outpost/internal/gateway/models"
	jsonWriter "outpost/internal/transport/http/json"
	"outpost/internal/transport/http/shared"
	dErrors "outpost/pkg/domain-errors"
)

// userIdentityHeader carries the caller's identity for authenticated calls.
const userIdentityHeader = "X-User-ID"

// handleProxy translates an incoming HTTP request into a pipeline request,
// runs it, and writes back the upstream result or the structured error.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/proxy")
	if endpoint == "" {
		endpoint = "/"
	}

	body, err := decodeBody(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	req := &gatewayModels.ClientRequest{
		Method:       r.Method,
		Endpoint:     endpoint,
		Body:         body,
		QueryParams:  query,
		UserIdentity: r.Header.Get(userIdentityHeader),
	}

	result, err := h.gateway.Process(r.Context(), req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if result.FromCache {
		w.Header().Set("X-Cache", "hit")
	}
	jsonWriter.WriteJSON(w, result.Status, result.Body)
}

// decodeBody reads the request body into a generic map. An empty body is
// valid and yields a nil map; anything else must be a JSON object.
func decodeBody(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, dErrors.New(dErrors.CodeValidation, "request body too large")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body")
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "request body must be a JSON object")
	}
	return body, nil
}
