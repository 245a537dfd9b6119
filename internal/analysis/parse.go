// Package analysis turns untyped model output into fully populated records.
// Model text is trusted only after it parses; every field it omits or
// mistypes is filled from a documented default.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/howard-nolan/chemtutor/internal/provider"
)

var (
	// ErrValidation marks bad caller input. It is never retried.
	ErrValidation = errors.New("validation error")

	// ErrExhausted means every generation attempt failed.
	ErrExhausted = errors.New("analysis attempts exhausted")
)

// StripCodeFences removes a leading ``` or ```lang fence and a trailing ```
// fence, if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop an optional language tag before the payload.
		if i := strings.IndexAny(s, "{["); i >= 0 && isFenceTag(s[:i]) {
			s = s[i:]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

func isFenceTag(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// parseObject strips fences and requires a single JSON object.
func parseObject(raw string) (gjson.Result, error) {
	cleaned := StripCodeFences(raw)
	if !gjson.Valid(cleaned) {
		return gjson.Result{}, fmt.Errorf("%w: response is not valid JSON", provider.ErrMalformedOutput)
	}
	root := gjson.Parse(cleaned)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: response is not a JSON object", provider.ErrMalformedOutput)
	}
	return root, nil
}

// ---------------------------------------------------------------------------
// Tolerant field readers
// ---------------------------------------------------------------------------

// str returns a non-blank string field or def.
func str(obj gjson.Result, key, def string) string {
	v := obj.Get(key)
	if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
		return v.Str
	}
	return def
}

// optStr returns nil for absent, null or blank fields. Numbers are kept as
// their literal text so a pH of 7 survives as "7".
func optStr(obj gjson.Result, key string) *string {
	v := obj.Get(key)
	switch v.Type {
	case gjson.String:
		if strings.TrimSpace(v.Str) == "" {
			return nil
		}
		s := v.Str
		return &s
	case gjson.Number:
		s := v.Raw
		return &s
	}
	return nil
}

func boolean(obj gjson.Result, key string, def bool) bool {
	v := obj.Get(key)
	if v.IsBool() {
		return v.Bool()
	}
	return def
}

// strList returns the string elements of an array field. ok is false when
// the field is not an array at all.
func strList(obj gjson.Result, key string) (list []string, ok bool) {
	v := obj.Get(key)
	if !v.IsArray() {
		return nil, false
	}
	list = []string{}
	for _, item := range v.Array() {
		if item.Type == gjson.String && strings.TrimSpace(item.Str) != "" {
			list = append(list, item.Str)
		}
	}
	return list, true
}

func strListOr(obj gjson.Result, key string, def []string) []string {
	if list, ok := strList(obj, key); ok {
		return list
	}
	return append(make([]string, 0, len(def)), def...)
}
