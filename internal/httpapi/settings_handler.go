package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"llm_console/internal/middleware"
	"llm_console/internal/providers"
	"llm_console/internal/storage"
	"llm_console/internal/utils"
	"llm_console/internal/web"
)

const settingsPath = "/api-settings"

// handleSettingsPage serves GET /api-settings with a live check of the store
// and both providers.
func (d *Dependencies) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page := settingsPage{
		pageData:     d.newPageData(r, "API settings", "settings"),
		RedisStatus:  d.Settings.Ping(ctx),
		OpenAIStatus: d.Status.Probe(ctx, providers.OpenAI),
		OllamaStatus: d.Status.Probe(ctx, providers.Ollama),
		Settings:     d.Settings.Load(ctx),
	}
	page.Flash = d.Flash.Pop(w, r)

	if key, ok := d.Settings.GetCredential(ctx); ok {
		page.MaskedKey = utils.MaskAPIKey(key)
	}

	if page.OllamaStatus {
		page.OllamaModels = d.Ollama.ListModels(ctx)
	}
	if len(page.OllamaModels) == 0 {
		page.OllamaModels = []providers.ModelInfo{{Name: page.Settings.OllamaModel}}
	}

	d.render(w, http.StatusOK, web.PageSettings, page)
}

// settingsForm is the decoded POST /api-settings body. KeyPresent tells a
// blank key field (clear the stored key) from an absent one (keep it).
type settingsForm struct {
	Provider    providers.Type
	OpenAIModel string
	OllamaModel string
	APIKey      string
	KeyPresent  bool
}

func parseSettingsForm(r *http.Request, defaults storage.Settings) (settingsForm, error) {
	if err := r.ParseForm(); err != nil {
		return settingsForm{}, fmt.Errorf("invalid form: %w", err)
	}

	provider := providers.Type(defaults.Provider)
	if v := strings.TrimSpace(r.PostForm.Get("llmProvider")); v != "" {
		t, err := providers.ParseType(v)
		if err != nil {
			return settingsForm{}, err
		}
		provider = t
	}

	form := settingsForm{
		Provider:    provider,
		OpenAIModel: formValue(r, "openaiModel", defaults.OpenAIModel),
		OllamaModel: formValue(r, "ollamaModel", defaults.OllamaModel),
	}
	if vals, ok := r.PostForm["openaiApiKey"]; ok {
		form.KeyPresent = true
		if len(vals) > 0 {
			form.APIKey = strings.TrimSpace(vals[0])
		}
	}
	return form, nil
}

func formValue(r *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(r.PostForm.Get(name)); v != "" {
		return v
	}
	return fallback
}

// handleSaveSettings serves POST /api-settings. It always redirects back to
// the settings page with a flash message describing the outcome.
func (d *Dependencies) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	msg, err := d.saveSettings(r.Context(), r)
	if err != nil {
		d.Logger.Error("error saving API settings", "error", err)
		msg = Message{Type: "danger", Text: "Error saving settings: " + err.Error()}
	}

	if err := d.Flash.Set(w, msg); err != nil {
		d.Logger.Error("error setting flash message", "error", err)
	}
	http.Redirect(w, r, settingsPath, http.StatusSeeOther)
}

func (d *Dependencies) saveSettings(ctx context.Context, r *http.Request) (Message, error) {
	form, err := parseSettingsForm(r, d.Settings.Defaults())
	if err != nil {
		return Message{}, err
	}

	err = d.Settings.Save(ctx, storage.Settings{
		Provider:    string(form.Provider),
		OpenAIModel: form.OpenAIModel,
		OllamaModel: form.OllamaModel,
	})
	if err != nil {
		return Message{}, err
	}
	operator, _ := middleware.GetOperator(ctx)
	d.Logger.Info("settings saved", "operator", operator, "provider", form.Provider, "openai_model", form.OpenAIModel, "ollama_model", form.OllamaModel)

	switch form.Provider {
	case providers.OpenAI:
		return d.verifyOpenAI(ctx, form)
	case providers.Ollama:
		return d.verifyOllama(ctx, form), nil
	}
	return savedMessage(), nil
}

func (d *Dependencies) verifyOpenAI(ctx context.Context, form settingsForm) (Message, error) {
	var cleared bool
	if form.KeyPresent {
		if err := d.Settings.SetCredential(ctx, form.APIKey); err != nil {
			return Message{}, err
		}
		cleared = form.APIKey == ""
	}

	if d.Status.Probe(ctx, providers.OpenAI) {
		if cleared {
			return Message{
				Type: "info",
				Text: "API key cleared from settings. Using API key from environment if available. Connection successful!",
			}, nil
		}
		return savedMessage(), nil
	}

	if key, _ := d.Credentials.Resolve(ctx); key == "" {
		return Message{
			Type: "warning",
			Text: "No OpenAI API key found in settings or environment variables. This is required for OpenAI provider.",
		}, nil
	}
	return Message{
		Type: "warning",
		Text: "Settings saved but OpenAI connection test failed. Check your API key.",
	}, nil
}

func (d *Dependencies) verifyOllama(ctx context.Context, form settingsForm) Message {
	if !d.Status.Probe(ctx, providers.Ollama) {
		return Message{
			Type: "warning",
			Text: "Settings saved but Ollama connection failed. Is Ollama running?",
		}
	}

	found, err := d.Ollama.HasModel(ctx, form.OllamaModel)
	if err != nil {
		d.Logger.Warn("could not verify Ollama model", "model", form.OllamaModel, "error", err)
	}
	if !found {
		return Message{
			Type: "warning",
			Text: fmt.Sprintf("Settings saved but model '%s' was not found in Ollama. You may need to pull it first.", form.OllamaModel),
		}
	}
	return savedMessage()
}

func savedMessage() Message {
	return Message{Type: "success", Text: "Settings saved successfully."}
}
