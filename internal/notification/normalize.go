package notification

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Normalize maps a raw push body onto a Canonical notification. It never
// fails: a missing body yields Default, and a body that is not a JSON object
// is shown verbatim as the notification body.
func Normalize(body []byte, hasBody bool) Canonical {
	n := Default()
	if !hasBody {
		return n
	}

	obj, ok := decodeObject(body)
	if !ok {
		if len(body) > 0 {
			n.Body = string(body)
		}
		return n
	}

	n.Title = firstString(obj, DefaultTitle, "title")
	n.Body = firstString(obj, DefaultBody, "body", "message")
	n.Icon = firstString(obj, DefaultIcon, "icon")
	n.Badge = firstString(obj, DefaultBadge, "badge")
	n.Tag = firstString(obj, DefaultTag, "tag", "id")

	if data, ok := obj["data"].(map[string]any); ok {
		n.Payload = data
	} else if v, present := obj["data"]; present && v != nil {
		// Payload is a map; a scalar or list data field is kept under "data".
		n.Payload = map[string]any{"data": v}
	} else {
		n.Payload = obj
	}
	return n
}

func decodeObject(body []byte) (map[string]any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// firstString returns the first key holding a non-blank scalar, rendered as
// text. Numeric ids are common, so json.Number counts.
func firstString(obj map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return def
}
