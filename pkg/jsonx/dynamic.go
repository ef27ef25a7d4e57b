// Package jsonx holds small JSON conversion helpers shared across packages.
package jsonx

import json "github.com/goccy/go-json"

// ToDynamicJSON converts any Go value into a dynamic JSON object represented
// as a map[string]any, by round-tripping it through its JSON encoding. It is
// used to hand typed schemas to SDKs that want loose maps.
func ToDynamicJSON(val any) (map[string]any, error) {
	result := make(map[string]any)
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}
