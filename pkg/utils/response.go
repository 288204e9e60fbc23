package utils

import (
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/logger"
)

// RespondJSON writes payload as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(payload); err != nil {
		logger.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}
