// Package jsonpath reads values out of JSON documents with a small JSONPath
// dialect ($.users[0].name) translated to gjson paths.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup returns the value at path. The second result reports whether the
// document is valid JSON and the path exists.
func Lookup(body []byte, path string) (gjson.Result, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	result := gjson.GetBytes(body, toGjsonPath(path))
	return result, result.Exists()
}

// Extract returns the value at path as a string. JSON null is returned as
// "null".
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON document")
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ExtractAll extracts every named path. Values that could be extracted are
// returned even when others fail.
func ExtractAll(body []byte, paths map[string]string) (map[string]string, error) {
	results := make(map[string]string, len(paths))
	var failed []string

	for name, path := range paths {
		value, err := Extract(body, path)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		results[name] = value
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("extraction errors: %s", strings.Join(failed, "; "))
	}
	return results, nil
}

// NonEmpty reports whether path holds a value with content: an array with at
// least one element, an object with at least one key, a non-empty string,
// a number or a boolean. Missing paths, null and invalid JSON are empty.
func NonEmpty(body []byte, path string) bool {
	result, ok := Lookup(body, path)
	if !ok {
		return false
	}

	switch result.Type {
	case gjson.Null:
		return false
	case gjson.String:
		return result.Str != ""
	case gjson.JSON:
		if result.IsArray() {
			return len(result.Array()) > 0
		}
		return len(result.Map()) > 0
	default:
		return true
	}
}

// NonEmptyArray reports whether path holds an array with at least one
// element.
func NonEmptyArray(body []byte, path string) bool {
	result, ok := Lookup(body, path)
	return ok && result.IsArray() && len(result.Array()) > 0
}

// toGjsonPath converts a JSONPath expression to gjson syntax.
//
//	$              -> @this
//	$.users[0].id  -> users.0.id
//	$[0]           -> 0
//	$['name']      -> name
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
