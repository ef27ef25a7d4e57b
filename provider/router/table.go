package router

import (
	"strings"

	"github.com/dockhand/relay/plugin"
)

// route describes one upstream provider family: the prefix its credentials
// carry in an Environment and the OpenAI-compatible endpoint it serves.
type route struct {
	// EnvPrefix is prepended to _API_KEY / _API_BASE / _API_VERSION.
	EnvPrefix string

	// BaseURL is the default endpoint. Empty means the SDK default. An
	// _API_BASE override in the environment always wins.
	BaseURL string
}

// routes maps the model-name prefix (before the first "/") to its upstream.
// Models without a prefix go to openai.
var routes = map[string]route{
	"openai":    {EnvPrefix: "OPENAI"},
	"azure":     {EnvPrefix: "AZURE"},
	"replicate": {EnvPrefix: "REPLICATE", BaseURL: "https://api.replicate.com/v1/openai"},
	"groq":      {EnvPrefix: "GROQ", BaseURL: "https://api.groq.com/openai/v1"},
	"mistral":   {EnvPrefix: "MISTRAL", BaseURL: "https://api.mistral.ai/v1"},
	"together":  {EnvPrefix: "TOGETHER", BaseURL: "https://api.together.xyz/v1"},
	"anyscale":  {EnvPrefix: "ANYSCALE", BaseURL: "https://api.endpoints.anyscale.com/v1"},
}

// DefaultModel is used when neither configuration nor call options name one.
const DefaultModel = "gpt-4o-mini"

// billableModels is the fixed allow-list of models the plugin may serve on
// its own fallback credentials, billing the caller through usage reports.
var billableModels = map[string]struct{}{
	"gpt-3.5-turbo": {},
	"gpt-4":         {},
	"gpt-4-32k":     {},
	"gpt-4o":        {},
	"gpt-4o-mini":   {},
}

// Billable reports whether the model may be served on fallback credentials.
func Billable(model string) bool {
	_, ok := billableModels[model]
	return ok
}

// splitModel separates the provider prefix from the upstream model name.
// "replicate/llama-2-70b-chat:tag" -> ("replicate", "llama-2-70b-chat:tag").
func splitModel(model string) (string, string, error) {
	name := strings.TrimSpace(model)
	if name == "" {
		name = DefaultModel
	}

	providerName, rest, found := strings.Cut(name, "/")
	if !found {
		return "openai", name, nil
	}
	if _, ok := routes[providerName]; !ok {
		return "", "", plugin.Errorf(plugin.CodeUnsupported, "unknown provider %q in model %q", providerName, model)
	}
	return providerName, rest, nil
}
