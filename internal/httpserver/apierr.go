package httpserver

import (
	"net/http"

	"github.com/blip0/control-plane/pkg/apierr"
)

// RespondAPIError writes the JSON error envelope for an apierr.Error,
// classifying unclassified errors as Internal per §7 (no stack traces, no
// raw cause leaked to the client).
func RespondAPIError(w http.ResponseWriter, err error) {
	e := apierr.Wrap(err)
	RespondError(w, e.Kind.StatusCode(), string(e.Kind), e.Message)
}
