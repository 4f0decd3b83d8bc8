package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestKvSliceToClueSkipsNonStringKeys(t *testing.T) {
	fielders := kvSliceToClue([]any{"a", 1, 2, "ignored", "b", "two"})
	if len(fielders) != 2 {
		t.Fatalf("expected 2 fielders (non-string key dropped), got %d", len(fielders))
	}
}

func TestKvSliceToClueHandlesOddLength(t *testing.T) {
	fielders := kvSliceToClue([]any{"a"})
	if len(fielders) != 1 {
		t.Fatalf("expected a trailing key with a nil value to still produce a fielder, got %d", len(fielders))
	}
}

func TestTagsToAttrsPairsValues(t *testing.T) {
	attrs := tagsToAttrs([]string{"env", "prod", "region", "us-east"})
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0] != attribute.String("env", "prod") {
		t.Errorf("unexpected first attribute: %v", attrs[0])
	}
}

func TestKvSliceToAttrsPicksConcreteType(t *testing.T) {
	attrs := kvSliceToAttrs([]any{"count", 3, "ok", true, "ratio", 0.5, "name", "x"})
	want := []attribute.KeyValue{
		attribute.Int("count", 3),
		attribute.Bool("ok", true),
		attribute.Float64("ratio", 0.5),
		attribute.String("name", "x"),
	}
	if len(attrs) != len(want) {
		t.Fatalf("expected %d attributes, got %d", len(want), len(attrs))
	}
	for i := range want {
		if attrs[i] != want[i] {
			t.Errorf("attr[%d] = %v, want %v", i, attrs[i], want[i])
		}
	}
}
