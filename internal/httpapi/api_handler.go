package httpapi

import (
	"fmt"
	"net/http"

	"llm_console/internal/providers"
	"llm_console/internal/status"
	"llm_console/internal/utils"
)

// handleStatus serves GET /api/status?provider=all|openai|ollama&forceCheck=true.
func (d *Dependencies) handleStatus(w http.ResponseWriter, r *http.Request) {
	scope, err := status.ParseScope(r.URL.Query().Get("provider"))
	if err != nil {
		d.Logger.Debug("unknown status scope, omitting provider sections", "error", err)
		scope = status.ScopeNone
	}

	payload, err := d.collectStatus(r, scope)
	if err != nil {
		d.Logger.Error("error checking service status", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to check service status")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, payload)
}

func (d *Dependencies) collectStatus(r *http.Request, scope status.Scope) (payload status.Payload, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("status aggregation panicked: %v", v)
		}
	}()
	return d.Status.GetStatus(r.Context(), utils.QueryBool(r, "forceCheck"), scope), nil
}

// handleEvents serves GET /api/llm/events?provider=openai|ollama.
func (d *Dependencies) handleEvents(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider")
	if name == "" {
		name = string(providers.OpenAI)
	}

	t, err := providers.ParseType(name)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider specified")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, d.client(t).Events())
}

// handleOpenAIEvents serves the older GET /api/openai/events path.
func (d *Dependencies) handleOpenAIEvents(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, d.OpenAI.Events())
}

// handleOllamaModels serves GET /api/ollama/models. Failures yield [].
func (d *Dependencies) handleOllamaModels(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, d.Ollama.ListModels(r.Context()))
}

func (d *Dependencies) client(t providers.Type) providers.Client {
	if t == providers.Ollama {
		return d.Ollama
	}
	return d.OpenAI
}
