package activity

import (
	"encoding/json"
	"testing"
)

func TestCatalog(t *testing.T) {
	catalog := Catalog()
	if len(catalog) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(catalog))
	}

	wantOrder := []string{TypeSnake, TypeYouTube, TypeChat}
	for i, want := range wantOrder {
		if catalog[i].Type != want {
			t.Fatalf("expected %s at position %d, got %s", want, i, catalog[i].Type)
		}
		if catalog[i].Name == "" || catalog[i].Description == "" {
			t.Fatalf("catalog entry %s missing name or description", want)
		}
	}
}

func TestValid(t *testing.T) {
	for _, tag := range []string{TypeSnake, TypeYouTube, TypeChat} {
		if !Valid(tag) {
			t.Fatalf("expected %q to be valid", tag)
		}
	}
	for _, tag := range []string{"", "poker", "YOUTUBE"} {
		if Valid(tag) {
			t.Fatalf("expected %q to be invalid", tag)
		}
	}
}

func TestNew(t *testing.T) {
	if !Valid(DefaultType) {
		t.Fatalf("default type %q must be valid", DefaultType)
	}

	for _, tag := range []string{TypeSnake, TypeYouTube, TypeChat} {
		act, err := New(tag, "room1", nil, &recorder{}, testLogger())
		if err != nil {
			t.Fatalf("failed to construct %s: %v", tag, err)
		}
		if act.Type() != tag {
			t.Fatalf("expected type %q, got %q", tag, act.Type())
		}
		if act.Name() == "" {
			t.Fatalf("activity %s has no display name", tag)
		}
	}

	if _, err := New("poker", "room1", nil, &recorder{}, testLogger()); err == nil {
		t.Fatalf("expected error for unknown type")
	}

	if _, err := New(TypeSnake, "room1", json.RawMessage(`{"grid_width":1}`), &recorder{}, testLogger()); err == nil {
		t.Fatalf("expected snake config validation to propagate")
	}
}
