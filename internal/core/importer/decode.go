package importer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agenthands/crosswalk/internal/core/model"
)

// Item is one questionnaire entry after decoding.
type Item struct {
	Key         string
	Text        string
	Section     string
	ItemType    string
	Description string
}

// Decode reads a questionnaire in YAML or JSON. Accepted shapes:
//
//	{"questionnaire": [section...]}   catalog product detail
//	{"sections": [section...]}
//	{"items": [item...]}
//	[section or item...]
//
// A section is an entry with "children"; its "question" (or "title") becomes
// the section label of every child.
func Decode(payload []byte) ([]Item, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", model.ErrMalformedPayload)
	}
	var doc interface{}
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}

	var entries []interface{}
	switch v := doc.(type) {
	case []interface{}:
		entries = v
	case map[string]interface{}:
		found := false
		for _, key := range []string{"questionnaire", "sections", "items"} {
			raw, ok := v[key]
			if !ok || raw == nil {
				continue
			}
			list, ok := raw.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a list", model.ErrMalformedPayload, key)
			}
			entries = append(entries, list...)
			found = true
		}
		if !found {
			return nil, fmt.Errorf("%w: no questionnaire, sections or items", model.ErrMalformedPayload)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected document of type %T", model.ErrMalformedPayload, doc)
	}

	var items []Item
	for _, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			// keep the position so the importer reports it as a failed item
			items = append(items, Item{})
			continue
		}
		children, hasChildren := entry["children"].([]interface{})
		if !hasChildren {
			items = append(items, toItem(entry, ""))
			continue
		}
		section := firstString(entry, "question", "title", "name")
		for _, c := range children {
			child, ok := c.(map[string]interface{})
			if !ok {
				items = append(items, Item{Section: section})
				continue
			}
			items = append(items, toItem(child, section))
		}
	}
	return items, nil
}

func toItem(m map[string]interface{}, section string) Item {
	return Item{
		Key:         firstString(m, "id", "key"),
		Text:        firstString(m, "question", "text"),
		Section:     section,
		ItemType:    firstString(m, "type"),
		Description: firstString(m, "description"),
	}
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case map[string]interface{}, []interface{}:
			continue
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
