package router

import (
	"sort"
	"strings"

	"github.com/dockhand/relay/plugin"
)

// Allowed environment key suffixes. Anything else is rejected at parse time.
const (
	suffixAPIKey     = "_API_KEY"
	suffixAPIBase    = "_API_BASE"
	suffixAPIVersion = "_API_VERSION"
)

// Environment is a parsed credential/endpoint override set, keyed by
// provider-prefixed names such as OPENAI_API_KEY. It is built once at plugin
// construction and never changes afterwards.
type Environment map[string]string

// ParseEnvironment parses a semicolon-delimited KEY:VALUE list. Keys must end
// with _API_KEY, _API_BASE, or _API_VERSION; values may contain colons, only
// the first one separates key from value.
func ParseEnvironment(raw string) (Environment, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	env := make(Environment)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, plugin.Errorf(plugin.CodeConfiguration,
				"environment entries must be KEY:VALUE pairs, got %q", pair)
		}
		if !validEnvKey(key) {
			return nil, plugin.NewError(plugin.CodeConfiguration,
				"environment keys must end with _API_KEY, _API_BASE, or _API_VERSION")
		}
		env[key] = strings.TrimSpace(value)
	}
	return env, nil
}

func validEnvKey(key string) bool {
	return strings.HasSuffix(key, suffixAPIKey) ||
		strings.HasSuffix(key, suffixAPIBase) ||
		strings.HasSuffix(key, suffixAPIVersion)
}

// String renders the environment back into its wire form with keys sorted.
// Values are included verbatim; do not log the result.
func (e Environment) String() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+":"+e[k])
	}
	return strings.Join(pairs, ";")
}

// APIKey returns the API key configured for the given provider prefix.
func (e Environment) APIKey(prefix string) (string, bool) {
	v, ok := e[prefix+suffixAPIKey]
	return v, ok && v != ""
}

// APIBase returns the endpoint override configured for the provider prefix.
func (e Environment) APIBase(prefix string) (string, bool) {
	v, ok := e[prefix+suffixAPIBase]
	return v, ok && v != ""
}

// APIVersion returns the API version configured for the provider prefix.
func (e Environment) APIVersion(prefix string) (string, bool) {
	v, ok := e[prefix+suffixAPIVersion]
	return v, ok && v != ""
}
