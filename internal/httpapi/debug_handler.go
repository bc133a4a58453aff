package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"llm_console/internal/providers"
	"llm_console/internal/utils"
	"llm_console/internal/web"
)

const responsePreviewLen = 100

// testTarget describes one provider's prompt test page.
type testTarget struct {
	provider providers.Type
	label    string
	action   string
	showKey  bool
}

var (
	openAITest = testTarget{provider: providers.OpenAI, label: "OpenAI", action: "/debug/openai-test", showKey: true}
	ollamaTest = testTarget{provider: providers.Ollama, label: "Ollama", action: "/debug/ollama-test"}
)

func (d *Dependencies) handleOpenAITestPage(w http.ResponseWriter, r *http.Request) {
	d.renderTestPage(w, r, openAITest, "", nil)
}

func (d *Dependencies) handleOpenAITest(w http.ResponseWriter, r *http.Request) {
	d.runPromptTest(w, r, openAITest)
}

func (d *Dependencies) handleOllamaTestPage(w http.ResponseWriter, r *http.Request) {
	d.renderTestPage(w, r, ollamaTest, "", nil)
}

func (d *Dependencies) handleOllamaTest(w http.ResponseWriter, r *http.Request) {
	d.runPromptTest(w, r, ollamaTest)
}

// runPromptTest sends the submitted prompt through the provider and reports
// the first characters of the reply.
func (d *Dependencies) runPromptTest(w http.ResponseWriter, r *http.Request, target testTarget) {
	ctx := r.Context()
	prompt := strings.TrimSpace(r.PostFormValue("prompt"))

	var messages []Message
	switch {
	case !d.Status.Probe(ctx, target.provider):
		messages = append(messages, Message{Type: "warning", Text: unreachableText(target)})
	case prompt == "":
		messages = append(messages, Message{Type: "warning", Text: "Please enter a prompt."})
	default:
		messages = append(messages, d.sendPrompt(ctx, target, prompt))
	}

	d.renderTestPage(w, r, target, prompt, messages)
}

func (d *Dependencies) sendPrompt(ctx context.Context, target testTarget, prompt string) Message {
	completion, err := d.client(target.provider).GetCompletion(ctx, prompt, d.modelFor(ctx, target.provider), 0)
	if err != nil {
		return Message{Type: "danger", Text: "Error getting completion: " + err.Error()}
	}

	text := completion.Text()
	runes := []rune(text)
	if len(runes) > responsePreviewLen {
		text = string(runes[:responsePreviewLen]) + "..."
	}
	return Message{
		Type: "success",
		Text: fmt.Sprintf("Prompt successfully sent. %s response: \"%s\"", target.label, text),
	}
}

func unreachableText(target testTarget) string {
	if target.provider == providers.OpenAI {
		return "OpenAI API is not accessible. Check your API key."
	}
	return "Ollama is not accessible. Is Ollama running?"
}

func (d *Dependencies) modelFor(ctx context.Context, t providers.Type) string {
	settings := d.Settings.Load(ctx)
	if t == providers.Ollama {
		return settings.OllamaModel
	}
	return settings.OpenAIModel
}

func (d *Dependencies) renderTestPage(w http.ResponseWriter, r *http.Request, target testTarget, prompt string, messages []Message) {
	ctx := r.Context()

	page := testPage{
		pageData:      d.newPageData(r, target.label+" test", string(target.provider)),
		ProviderLabel: target.label,
		Action:        target.action,
		ShowKey:       target.showKey,
		Model:         d.modelFor(ctx, target.provider),
		LastPrompt:    prompt,
	}
	page.Messages = messages

	if messages == nil {
		page.APIStatus = d.Status.Probe(ctx, target.provider)
	} else {
		page.APIStatus = d.Status.Record(target.provider).Accessible
	}

	if target.showKey {
		key, _ := d.Credentials.Resolve(ctx)
		page.MaskedKey = utils.MaskAPIKey(key)
	}

	d.render(w, http.StatusOK, web.PageTest, page)
}
