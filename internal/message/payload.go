// Package message defines the provider-agnostic outbound message payloads
// and the outcome events the routing core emits after send attempts.
package message

// Type enumerates supported outbound message kinds.
type Type string

const (
	TypeText     Type = "text"
	TypeTemplate Type = "template"
	TypeImage    Type = "image"
	TypeDocument Type = "document"
)

// Payload is the data required to send one outbound message.
//
// The shape stays close to the provider wire format but is defined here so
// business logic never depends on provider SDK types.
type Payload struct {
	Type Type `json:"type"`

	Text     *Text     `json:"text,omitempty"`
	Template *Template `json:"template,omitempty"`
	MediaURL string    `json:"media_url,omitempty"`
}

type Text struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type Template struct {
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
}

// Validate checks the minimal structural invariants of a payload.
func (p Payload) Validate() bool {
	switch p.Type {
	case TypeText:
		return p.Text != nil && p.Text.Body != ""
	case TypeTemplate:
		return p.Template != nil && p.Template.Name != "" && p.Template.LanguageCode != ""
	case TypeImage, TypeDocument:
		return p.MediaURL != ""
	default:
		return false
	}
}
