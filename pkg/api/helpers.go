package api

import (
	"net/http"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/httputil"
)

// parseBody decodes the JSON request body, coding decode failures so the
// gate answers 400 instead of 500.
func parseBody(r *http.Request, dest interface{}) error {
	if err := httputil.ParseJSON(r, dest); err != nil {
		return apierr.Invalid("invalid JSON body")
	}
	return nil
}

// pathID extracts the {id} path parameter
func pathID(r *http.Request) (int64, error) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return 0, apierr.Invalid("invalid id")
	}
	return id, nil
}
