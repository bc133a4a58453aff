package httpapi

import (
	"net/http"

	"llm_console/internal/providers"
	"llm_console/internal/storage"
)

// pageData is shared by every rendered page.
type pageData struct {
	Title           string
	Active          string
	ShowNav         bool
	AuthEnabled     bool
	PollIntervalMs  int64
	CurrentProvider string
	Flash           *Message
	Messages        []Message
}

type settingsPage struct {
	pageData
	RedisStatus  bool
	OpenAIStatus bool
	OllamaStatus bool
	Settings     storage.Settings
	MaskedKey    string
	OllamaModels []providers.ModelInfo
}

type testPage struct {
	pageData
	ProviderLabel string
	Action        string
	APIStatus     bool
	ShowKey       bool
	MaskedKey     string
	Model         string
	LastPrompt    string
}

func (d *Dependencies) newPageData(r *http.Request, title, active string) pageData {
	return pageData{
		Title:           title,
		Active:          active,
		ShowNav:         true,
		AuthEnabled:     d.Sessions.Enabled(),
		PollIntervalMs:  d.Config.Status.PollInterval.Milliseconds(),
		CurrentProvider: d.Settings.CurrentProvider(r.Context()),
	}
}

func (d *Dependencies) render(w http.ResponseWriter, status int, page string, data any) {
	if err := d.Pages.Render(w, status, page, data); err != nil {
		d.Logger.Error("error rendering page", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
