package jsonrepair

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRepairValidInputUnchanged(t *testing.T) {
	tests := []string{
		`{}`,
		`{"a":1}`,
		`{"home":{"title":"Welcome","items":["a","b","c"]}}`,
		`{"a": "value with } brace", "b": "and { another"}`,
		`{"quote":"she said \"hi\" {"}`,
		`{"nested":[{"x":[1,2,{"y":null}]},true,false]}`,
	}
	for _, in := range tests {
		got, err := Repair(in)
		if err != nil {
			t.Fatalf("Repair(%q) error: %v", in, err)
		}
		if got != in {
			t.Fatalf("Repair(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestRepairDropsSurroundingProse(t *testing.T) {
	in := "Sure! Here is the translation:\n{\"a\":\"b\"}\nLet me know if you need anything else {ok}."
	got, err := Repair(in)
	if err != nil {
		t.Fatalf("Repair error: %v", err)
	}
	if got != `{"a":"b"}` {
		t.Fatalf("Repair = %q, want %q", got, `{"a":"b"}`)
	}
}

func TestRepairBraceInsideString(t *testing.T) {
	got, err := Repair(`{"a": "value with } brace"}`)
	if err != nil {
		t.Fatalf("Repair error: %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", got, err)
	}
	if v["a"] != "value with } brace" {
		t.Fatalf("a = %q, want %q", v["a"], "value with } brace")
	}
}

func TestRepairClosesTruncatedObject(t *testing.T) {
	got, err := Repair(`{"home":{"title":"Welkom"`)
	if err != nil {
		t.Fatalf("Repair error: %v", err)
	}
	if got != `{"home":{"title":"Welkom"}}` {
		t.Fatalf("Repair = %q, want %q", got, `{"home":{"title":"Welkom"}}`)
	}
}

func TestRepairTruncatedTails(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma", `{"a":"x",`, `{"a":"x"}`},
		{"dangling key", `{"a":"x","b"`, `{"a":"x"}`},
		{"dangling colon", `{"a":"x","b":`, `{"a":"x"}`},
		{"open array", `{"a":["x","y"`, `{"a":["x","y"]}`},
		{"open string value", `{"a":"Wel`, `{"a":"Wel"}`},
		{"partial literal", `{"a":1,"b":tr`, `{"a":1}`},
		{"dangling escape", `{"a":"x\`, `{"a":"x"}`},
		{"nested array of objects", `{"faq":[{"q":"1"},{"q":"2"`, `{"faq":[{"q":"1"},{"q":"2"}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Repair(tc.in)
			if err != nil {
				t.Fatalf("Repair error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Repair(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRepairEveryTruncationParses(t *testing.T) {
	doc := `{"home":{"title":"Welcome \"home\" {}","count":12.5,"ok":true,"none":null,` +
		`"items":["a","b",{"c":[1,2,3]}],"faq":[{"question":"Why?","answer":"Because é é"}]},"footer":"bye"}`
	if !json.Valid([]byte(doc)) {
		t.Fatal("fixture is not valid JSON")
	}
	for i := 1; i < len(doc); i++ {
		got, err := Repair(doc[:i])
		if err != nil {
			t.Fatalf("cut %d: Repair error: %v", i, err)
		}
		if !json.Valid([]byte(got)) {
			t.Fatalf("cut %d: Repair(%q) = %q, not valid JSON", i, doc[:i], got)
		}
	}
}

func TestRepairNoJSON(t *testing.T) {
	for _, in := range []string{"", "no braces here", "[1,2,3]"} {
		if _, err := Repair(in); !errors.Is(err, ErrNoJSON) {
			t.Fatalf("Repair(%q) error = %v, want ErrNoJSON", in, err)
		}
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around fence", "Here:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1", `{"a":1`},
		{"no fence", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Fatalf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
