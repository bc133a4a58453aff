package httpapi

import (
	"net/http"
	"time"

	"llm_console/internal/auth"
)

const (
	flashCookieName = "llm_console_flash"
	flashTTL        = 5 * time.Minute
)

// Message is a Bootstrap-styled notice: Type is success, info, warning or
// danger.
type Message struct {
	Type string
	Text string
}

// FlashStore carries one message across a redirect in a signed cookie.
type FlashStore struct {
	signer *auth.Signer
}

// NewFlashStore creates a flash store signing with signer.
func NewFlashStore(signer *auth.Signer) *FlashStore {
	return &FlashStore{signer: signer}
}

// Set replaces any pending message.
func (f *FlashStore) Set(w http.ResponseWriter, msg Message) error {
	token, err := f.signer.Sign("flash", map[string]string{"type": msg.Type, "text": msg.Text}, flashTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(flashTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Pop returns the pending message, if any, and clears it so it is shown once.
func (f *FlashStore) Pop(w http.ResponseWriter, r *http.Request) *Message {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	claims, err := f.signer.Parse(cookie.Value)
	if err != nil || claims.Subject != "flash" {
		return nil
	}
	return &Message{Type: claims.Data["type"], Text: claims.Data["text"]}
}
