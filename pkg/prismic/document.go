package prismic

import (
	"encoding/json"
	"strings"
)

// Document is a content repository record before normalization. Data keeps the
// custom type's fields undecoded; consumers pick what they need.
type Document struct {
	ID                   string          `json:"id"`
	UID                  string          `json:"uid"`
	Type                 string          `json:"type"`
	Href                 string          `json:"href,omitempty"`
	Tags                 []string        `json:"tags,omitempty"`
	FirstPublicationDate string          `json:"first_publication_date,omitempty"`
	LastPublicationDate  string          `json:"last_publication_date,omitempty"`
	Lang                 string          `json:"lang,omitempty"`
	Data                 json.RawMessage `json:"data"`
}

// Field decodes a single field of Data into v. It reports false when Data is
// not an object, the field is missing or null, or it does not fit v.
func (d Document) Field(name string, v any) bool {
	if len(d.Data) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(d.Data, &fields); err != nil {
		return false
	}
	raw, ok := fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Text returns a field as plain text. Key text fields are plain strings while
// title and rich text fields are arrays of blocks; both are accepted.
func (d Document) Text(name string) string {
	var raw json.RawMessage
	if !d.Field(name, &raw) {
		return ""
	}
	return AsText(raw)
}

// PlainText concatenates every "text" value found anywhere in Data. It is what
// gets indexed for full-text search in the local mirror.
func (d Document) PlainText() string {
	if len(d.Data) == 0 {
		return ""
	}
	var root any
	if err := json.Unmarshal(d.Data, &root); err != nil {
		return ""
	}
	var parts []string
	collectText(root, &parts)
	return strings.Join(parts, "\n")
}

func collectText(node any, parts *[]string) {
	switch v := node.(type) {
	case map[string]any:
		if s, ok := v["text"].(string); ok && s != "" {
			*parts = append(*parts, s)
		}
		for k, child := range v {
			if k == "text" {
				continue
			}
			collectText(child, parts)
		}
	case []any:
		for _, child := range v {
			collectText(child, parts)
		}
	}
}

// Block is one block of a rich text or title field.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AsText converts a key text or rich text value to plain text. Rich text
// blocks are joined with a newline.
func AsText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// LinkResolver maps a document to a site path.
type LinkResolver func(Document) string

// DefaultLinkResolver sends every document with a uid to "/<uid>".
func DefaultLinkResolver(doc Document) string {
	if doc.UID == "" {
		return "/"
	}
	return "/" + doc.UID
}
