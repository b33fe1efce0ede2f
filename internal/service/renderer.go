package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
)

// Variables bound for every store during fan-out.
const (
	VarMediaURL  = "media_url"
	VarStoreName = "store_name"
)

// RenderFlexTemplate replaces {{name}} with vars[name] inside every string value
// of doc. Object keys are left alone and placeholders without a mapping stay verbatim.
// Substituted values are re-encoded, so quotes or backslashes in a value cannot
// change the document's structure.
func RenderFlexTemplate(doc json.RawMessage, vars map[string]string) (json.RawMessage, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, &appErrors.RenderError{Err: errors.New("template document is empty")}
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &appErrors.RenderError{Err: err}
	}
	if dec.More() {
		return nil, &appErrors.RenderError{Err: errors.New("trailing data after template document")}
	}

	rendered := substitute(tree, placeholderReplacer(vars))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rendered); err != nil {
		return nil, &appErrors.RenderError{Err: err}
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func placeholderReplacer(vars map[string]string) *strings.Replacer {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...)
}

func substitute(node any, r *strings.Replacer) any {
	switch v := node.(type) {
	case string:
		return r.Replace(v)
	case map[string]any:
		for k, child := range v {
			v[k] = substitute(child, r)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = substitute(child, r)
		}
		return v
	default:
		return v
	}
}
