package wire

import (
	"reflect"
	"testing"
)

func TestMarshalUnmarshal_Primitives(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		int64(0),
		int64(-42),
		float64(1.5),
		"",
		"hello",
		[]byte("raw-bytes"),
		[]any{int64(1), "x", false, nil},
		map[string]any{"a": int64(1), "b": "x"},
		map[string]any{"nested": map[string]any{"n": int64(42)}},
	}
	for i, v := range cases {
		b, err := Marshal(v)
		if err != nil {
			t.Fatalf("case %d marshal error: %v", i, err)
		}
		got, err := Unmarshal(b)
		if err != nil {
			t.Fatalf("case %d unmarshal error: %v", i, err)
		}
		if !reflect.DeepEqual(v, got) {
			t.Fatalf("case %d mismatch\norig=%#v\ngot=%#v", i, v, got)
		}
	}
}

func TestMarshal_NarrowIntegerTypesWiden(t *testing.T) {
	b, err := Marshal(int32(7))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != int64(7) {
		t.Fatalf("expected int64(7), got %#v", got)
	}
}

func TestUnmarshal_UnknownMarker(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF}); err == nil {
		t.Fatal("expected error for unknown marker")
	}
}

func TestUnmarshal_TruncatedInput(t *testing.T) {
	b, err := Marshal("a longer string than one byte")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Unmarshal(b[:2]); err == nil {
		t.Fatal("expected error for truncated input")
	}
}
