// Package notification turns inbound push payloads into a canonical,
// presentation-ready record.
package notification

const (
	DefaultTitle = "Nouvelle notification"
	DefaultBody  = "Vous avez une nouvelle notification"
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/badge-72x72.png"
	DefaultTag   = "default"
)

// Action identifiers understood by the interaction router.
const (
	ActionView    = "view"
	ActionDismiss = "dismiss"
)

type Action struct {
	ID    string `json:"action"`
	Label string `json:"title"`
}

// DefaultActions returns the fixed action set offered on every notification.
func DefaultActions() []Action {
	return []Action{
		{ID: ActionView, Label: "Voir"},
		{ID: ActionDismiss, Label: "Fermer"},
	}
}

// Canonical is a normalized notification. Title, Body and Tag are never empty.
type Canonical struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Icon    string         `json:"icon"`
	Badge   string         `json:"badge"`
	Tag     string         `json:"tag"`
	Payload map[string]any `json:"data"`
	Actions []Action       `json:"actions"`
}

// Default is the notification shown for a push without a body.
func Default() Canonical {
	return Canonical{
		Title:   DefaultTitle,
		Body:    DefaultBody,
		Icon:    DefaultIcon,
		Badge:   DefaultBadge,
		Tag:     DefaultTag,
		Payload: map[string]any{},
		Actions: DefaultActions(),
	}
}

// URL returns the navigation target carried in the payload, or "/".
func (n Canonical) URL() string {
	if u, ok := n.Payload["url"].(string); ok && u != "" {
		return u
	}
	return "/"
}
