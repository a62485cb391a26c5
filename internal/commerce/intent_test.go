package commerce

import (
	"strings"
	"testing"
)

func TestDetectIntentOrderNumber(t *testing.T) {
	t.Parallel()

	intent := DetectIntent("where is my order #1042")
	if intent.Type != IntentOrder {
		t.Fatalf("type = %s, want order", intent.Type)
	}
	if intent.Query != "#1042" {
		t.Fatalf("query = %q, want #1042", intent.Query)
	}
}

func TestDetectIntentOrderWithoutHash(t *testing.T) {
	t.Parallel()

	intent := DetectIntent("what happened to order 1042?")
	if intent.Type != IntentOrder {
		t.Fatalf("type = %s, want order", intent.Type)
	}
	if intent.Query != "#1042" {
		t.Fatalf("query = %q, want #1042", intent.Query)
	}
}

func TestDetectIntentTrackingVocabulary(t *testing.T) {
	t.Parallel()

	intent := DetectIntent("my package still hasn't shipped, can you check the tracking?")
	if intent.Type != IntentOrder {
		t.Fatalf("type = %s, want order", intent.Type)
	}
	if intent.Query != "" {
		t.Fatalf("query = %q, want empty (email fallback)", intent.Query)
	}
}

func TestDetectIntentProduct(t *testing.T) {
	t.Parallel()

	intent := DetectIntent("do you have the blue hoodie in stock")
	if intent.Type != IntentProduct {
		t.Fatalf("type = %s, want product", intent.Type)
	}
	words := strings.Fields(intent.Query)
	if len(words) == 0 || len(words) > 3 {
		t.Fatalf("query %q must contain 1-3 content words", intent.Query)
	}
	for _, w := range words {
		if len(w) <= 3 {
			t.Fatalf("query word %q too short", w)
		}
		if w == "stock" || w == "have" {
			t.Fatalf("query %q contains excluded word %q", intent.Query, w)
		}
	}
	if !strings.Contains(intent.Query, "hoodie") {
		t.Fatalf("query %q should retain the product noun", intent.Query)
	}
}

func TestDetectIntentNone(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{"hi there", "", "   ", "thanks for the help!"} {
		if intent := DetectIntent(msg); intent.Type != IntentNone {
			t.Fatalf("DetectIntent(%q) = %s, want none", msg, intent.Type)
		}
	}
}
