package api

import (
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestParseId(t *testing.T) {
	tests := []struct {
		name  string
		input string
		uuid  bool
		plain string
	}{
		{name: "bare uuid", input: "6ba7b810-9dad-41d1-80b4-00c04fd430c8", uuid: true, plain: "6ba7b810-9dad-41d1-80b4-00c04fd430c8"},
		{name: "id scheme", input: "id:6ba7b810-9dad-41d1-80b4-00c04fd430c8", uuid: true, plain: "6ba7b810-9dad-41d1-80b4-00c04fd430c8"},
		{name: "uuid scheme", input: "uuid:6ba7b810-9dad-41d1-80b4-00c04fd430c8", uuid: true, plain: "6ba7b810-9dad-41d1-80b4-00c04fd430c8"},
		{name: "urn scheme", input: "urn:uuid:6BA7B810-9DAD-41D1-80B4-00C04FD430C8", uuid: true, plain: "6ba7b810-9dad-41d1-80b4-00c04fd430c8"},
		{name: "bare token", input: "ds-1", plain: "ds-1"},
		{name: "quoted token", input: `id:"two words"`, plain: `"two words"`},
		{name: "quoted uuid shaped token", input: `id:"6ba7b810-9dad-41d1-80b4-00c04fd430c8"`, plain: `"6ba7b810-9dad-41d1-80b4-00c04fd430c8"`},
		{name: "quoted scheme token", input: `id:"id:x"`, plain: `"id:x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseId(tt.input)
			if err != nil {
				t.Fatalf("ParseId(%q) error = %v", tt.input, err)
			}
			if id.IsUUID() != tt.uuid {
				t.Errorf("IsUUID() = %v, want %v", id.IsUUID(), tt.uuid)
			}
			if id.Plain() != tt.plain {
				t.Errorf("Plain() = %q, want %q", id.Plain(), tt.plain)
			}
		})
	}
}

func TestParseId_Malformed(t *testing.T) {
	for _, input := range []string{"", "id:", "uuid:not-a-uuid", "urn:uuid:", "two words", "a\"b", `id:""`, "tab\there"} {
		_, err := ParseId(input)
		if err == nil {
			t.Errorf("ParseId(%q) expected error", input)
			continue
		}
		if !errors.Is(err, ErrMalformedId) {
			t.Errorf("ParseId(%q) error = %v, want malformed id", input, err)
		}
	}
}

func TestId_RoundTrip(t *testing.T) {
	ids := []Id{NewId(), NewId(), MustParseId("plain"), MustParseId(`id:"with space"`)}
	odd, err := IdFromString(`"quoted" and id:prefixed`)
	if err != nil {
		t.Fatal(err)
	}
	uuidText, err := IdFromString("6ba7b810-9dad-41d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatal(err)
	}
	ids = append(ids, odd, uuidText)

	for _, id := range ids {
		for _, text := range []string{id.String(), id.Plain()} {
			got, err := ParseId(text)
			if err != nil {
				t.Fatalf("ParseId(%q) error = %v", text, err)
			}
			if got != id {
				t.Errorf("round trip of %q through %q gave %q", id, text, got)
			}
		}
	}
}

func TestId_Msgpack(t *testing.T) {
	type holder struct {
		A Id
		B Id
	}
	in := holder{A: NewId()}
	d, err := msgpack.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out holder
	if err := msgpack.Unmarshal(d, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out != in {
		t.Errorf("got %v, want %v", out, in)
	}
	if !out.B.IsNil() {
		t.Errorf("expected nil id to survive encoding, got %q", out.B)
	}
}

func TestNewId_Distinct(t *testing.T) {
	seen := map[Id]bool{}
	for i := 0; i < 1000; i++ {
		id := NewId()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
