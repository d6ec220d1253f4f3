package handlers

import (
	"net/http"

	"github.com/manasdhir/Voice-Bot/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeError(w, reqID, http.StatusNotFound, "not_found_error", "route not found")
}
