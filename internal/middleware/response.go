package middleware

import (
	"net/http"

	apperrors "github.com/openclaw/rendezvous-server-go/internal/errors"
	"github.com/openclaw/rendezvous-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	httputil.WriteError(w, err)
}
