package store

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/roach88/loopmerge/internal/ir"
)

func TestMarshalDelta_Canonical(t *testing.T) {
	d := ir.Delta{
		Seq:  1,
		Loop: 7,
		Kind: ir.DeltaCameraMoved,
		Path: "Camera/2",
	}

	got, err := marshalDelta(d)
	if err != nil {
		t.Fatalf("marshalDelta() failed: %v", err)
	}

	want := `{"kind":"camera_moved","loop":7,"path":"Camera/2","position":{"x":0,"y":0,"z":0},"seq":1}`
	if got != want {
		t.Errorf("marshalDelta() = %s, want %s", got, want)
	}
}

func TestMarshalDelta_RoundTrip(t *testing.T) {
	v := 12.5
	d := createTestDelta(3, 9)
	d.Origin = &ir.Vec3{X: 0.25, Y: -0.5}
	d.Value = &v

	data, err := marshalDelta(d)
	if err != nil {
		t.Fatalf("marshalDelta() failed: %v", err)
	}
	back, err := unmarshalDelta(data)
	if err != nil {
		t.Fatalf("unmarshalDelta() failed: %v", err)
	}
	if !reflect.DeepEqual(back, d) {
		t.Errorf("round trip = %+v, want %+v", back, d)
	}
}

func TestUnmarshalDelta_Invalid(t *testing.T) {
	if _, err := unmarshalDelta(`{"seq":`); err == nil {
		t.Error("expected error for truncated payload, got nil")
	}
}

func TestMarshalDocument(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "{}"},
		{"empty raw", json.RawMessage(nil), "{}"},
		{"raw", json.RawMessage(`{"b":1,"a":2}`), `{"b":1,"a":2}`},
		{"map sorted", map[string]int{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"no html escape", map[string]string{"label": "A>B&C"}, `{"label":"A>B&C"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalDocument(tt.input)
			if err != nil {
				t.Fatalf("marshalDocument() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("marshalDocument() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMarshalDocument_InvalidRaw(t *testing.T) {
	if _, err := marshalDocument(json.RawMessage(`{`)); err == nil {
		t.Error("expected error for invalid raw JSON, got nil")
	}
}
