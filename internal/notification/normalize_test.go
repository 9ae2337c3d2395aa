package notification

import (
	"reflect"
	"testing"
)

func TestNormalizeNoBodyIsDefault(t *testing.T) {
	t.Parallel()
	got := Normalize(nil, false)
	if !reflect.DeepEqual(got, Default()) {
		t.Fatalf("Normalize(no body) = %+v, want %+v", got, Default())
	}
	if len(got.Payload) != 0 {
		t.Fatalf("Payload = %v, want empty", got.Payload)
	}
	// hasBody=false wins even if bytes are passed.
	if got := Normalize([]byte(`{"title":"x"}`), false); got.Title != DefaultTitle {
		t.Fatalf("Title = %q, want default", got.Title)
	}
}

func TestNormalizeUndecodableUsesRawText(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"plain text message",
		"{not json",
		`["a","b"]`,
		`"just a string"`,
		"42",
		`{"title":"x"} trailing`,
	} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			got := Normalize([]byte(raw), true)
			if got.Body != raw {
				t.Fatalf("Body = %q, want %q", got.Body, raw)
			}
			if got.Title != DefaultTitle || got.Tag != DefaultTag || got.Icon != DefaultIcon {
				t.Fatalf("non-body fields changed: %+v", got)
			}
		})
	}
}

func TestNormalizeBlankBodyKeepsInvariant(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		body string
	}{
		{raw: "", body: DefaultBody},
		{raw: "   ", body: "   "},
		{raw: "\n", body: "\n"},
	}
	for _, tt := range tests {
		got := Normalize([]byte(tt.raw), true)
		if got.Title == "" || got.Tag == "" {
			t.Fatalf("Normalize(%q) = %+v, want non-empty title/tag", tt.raw, got)
		}
		if got.Body != tt.body {
			t.Fatalf("Normalize(%q).Body = %q, want %q", tt.raw, got.Body, tt.body)
		}
	}
}

func TestNormalizeFieldPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		title   string
		body    string
		tag     string
		payload map[string]any
	}{
		{
			name:    "message synonym and id tag",
			raw:     `{"title":"X","message":"Y","id":"abc"}`,
			title:   "X",
			body:    "Y",
			tag:     "abc",
			payload: map[string]any{"title": "X", "message": "Y", "id": "abc"},
		},
		{
			name:    "explicit beats synonym",
			raw:     `{"body":"B","message":"M","tag":"t","id":"i","data":{"url":"/foo"}}`,
			title:   DefaultTitle,
			body:    "B",
			tag:     "t",
			payload: map[string]any{"url": "/foo"},
		},
		{
			name:    "empty strings fall through",
			raw:     `{"title":"","body":"  ","message":"M"}`,
			title:   DefaultTitle,
			body:    "M",
			tag:     DefaultTag,
			payload: map[string]any{"title": "", "body": "  ", "message": "M"},
		},
		{
			name:    "empty object",
			raw:     `{}`,
			title:   DefaultTitle,
			body:    DefaultBody,
			tag:     DefaultTag,
			payload: map[string]any{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize([]byte(tt.raw), true)
			if got.Title != tt.title || got.Body != tt.body || got.Tag != tt.tag {
				t.Fatalf("got title=%q body=%q tag=%q, want %q %q %q", got.Title, got.Body, got.Tag, tt.title, tt.body, tt.tag)
			}
			if !reflect.DeepEqual(got.Payload, tt.payload) {
				t.Fatalf("Payload = %#v, want %#v", got.Payload, tt.payload)
			}
			if !reflect.DeepEqual(got.Actions, DefaultActions()) {
				t.Fatalf("Actions = %v", got.Actions)
			}
		})
	}
}

func TestNormalizeNumericID(t *testing.T) {
	t.Parallel()
	got := Normalize([]byte(`{"id":12345}`), true)
	if got.Tag != "12345" {
		t.Fatalf("Tag = %q, want 12345", got.Tag)
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	if u := Default().URL(); u != "/" {
		t.Fatalf("URL() = %q, want /", u)
	}
	n := Normalize([]byte(`{"data":{"url":"/foo"}}`), true)
	if u := n.URL(); u != "/foo" {
		t.Fatalf("URL() = %q, want /foo", u)
	}
}
