package bot

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateSize = 1 << 20

// WebhookHandler accepts Telegram updates. When secret is set, requests
// without the matching secret header are rejected. Updates are acknowledged
// immediately and answered in the background.
func (b *Bot) WebhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			got := r.Header.Get(SecretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeStatus(w, http.StatusUnauthorized, "error", "invalid secret token")
				return
			}
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateSize)).Decode(&update); err != nil {
			b.logger.Warn("malformed webhook update", "error", err)
			writeStatus(w, http.StatusBadRequest, "error", "malformed update")
			return
		}

		b.Dispatch(r.Context(), update)
		writeStatus(w, http.StatusOK, "ok", "")
	}
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	body := map[string]string{"status": status}
	if message != "" {
		body["message"] = message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
