package codec

import (
	"bytes"
	"testing"
	"time"
)

type sample struct {
	Name  string            `cbor:"name"`
	Tags  map[string]string `cbor:"tags,omitempty"`
	Count int               `cbor:"count"`
	When  time.Time         `cbor:"when"`
}

func TestMarshal_Deterministic(t *testing.T) {
	v := sample{
		Name:  "mylib",
		Tags:  map[string]string{"z": "1", "a": "2", "m": "3"},
		Count: 7,
		When:  time.Date(2009, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic on iteration %d", i)
		}
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	in := sample{Name: "x", Count: 3, When: time.Date(2020, 1, 2, 3, 4, 5, 6, time.UTC)}
	b, err := Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out sample
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || !out.When.Equal(in.When) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestEncoderDecoder_Sequence(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, n := range []string{"a", "b", "c"} {
		if err := enc.Encode(sample{Name: n}); err != nil {
			t.Fatal(err)
		}
	}
	dec := NewDecoder(&buf)
	var got []string
	for i := 0; i < 3; i++ {
		var s sample
		if err := dec.Decode(&s); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		got = append(got, s.Name)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected sequence: %v", got)
	}
}
