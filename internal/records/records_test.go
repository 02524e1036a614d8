package records

import (
	"errors"
	"reflect"
	"testing"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]any
		key       string
		want      any
		wantFound bool
	}{
		{
			name:      "nested only",
			raw:       map[string]any{"id": "rec1", "fields": map[string]any{"Status": "Live"}},
			key:       "Status",
			want:      "Live",
			wantFound: true,
		},
		{
			name:      "flat only",
			raw:       map[string]any{"id": "rec1", "Status": "Booked"},
			key:       "Status",
			want:      "Booked",
			wantFound: true,
		},
		{
			name:      "nested takes precedence over flat",
			raw:       map[string]any{"Status": "Booked", "fields": map[string]any{"Status": "Live"}},
			key:       "Status",
			want:      "Live",
			wantFound: true,
		},
		{
			name:      "falls back to flat when nested lacks key",
			raw:       map[string]any{"Budget": 500.0, "fields": map[string]any{"Status": "Live"}},
			key:       "Budget",
			want:      500.0,
			wantFound: true,
		},
		{
			name:      "absent in both",
			raw:       map[string]any{"fields": map[string]any{"Status": "Live"}},
			key:       "Budget",
			wantFound: false,
		},
		{
			name:      "present but empty",
			raw:       map[string]any{"fields": map[string]any{"Notes": ""}},
			key:       "Notes",
			want:      "",
			wantFound: true,
		},
		{
			name:      "metadata keys are not fields",
			raw:       map[string]any{"id": "rec1"},
			key:       "id",
			wantFound: false,
		},
		{
			name:      "nil record",
			raw:       nil,
			key:       "Status",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Get(tt.raw, tt.key)
			if got.IsMissing() == tt.wantFound {
				t.Fatalf("Get() missing = %v, want found %v", got.IsMissing(), tt.wantFound)
			}
			if tt.wantFound && !reflect.DeepEqual(got.Raw(), tt.want) {
				t.Errorf("Get() = %v, want %v", got.Raw(), tt.want)
			}
			if !tt.wantFound && got != Missing {
				t.Errorf("Get() = %#v, want Missing", got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("both shapes normalize to the same record", func(t *testing.T) {
		nested := Normalize(map[string]any{
			"id":          "rec1",
			"createdTime": "2024-03-01T10:00:00.000Z",
			"fields":      map[string]any{"Name": "Spring Push", "Budget": 1200.0},
		})
		flat := Normalize(map[string]any{
			"id":          "rec1",
			"createdTime": "2024-03-01T10:00:00.000Z",
			"Name":        "Spring Push",
			"Budget":      1200.0,
		})

		if !reflect.DeepEqual(nested, flat) {
			t.Errorf("shapes differ:\nnested=%#v\nflat=%#v", nested, flat)
		}
		if nested.ID != "rec1" {
			t.Errorf("expected id rec1, got %s", nested.ID)
		}
	})

	t.Run("nested wins on conflict", func(t *testing.T) {
		rec := Normalize(map[string]any{
			"Status": "Booked",
			"fields": map[string]any{"Status": "Live"},
		})
		if s, _ := rec.Get("Status").String(); s != "Live" {
			t.Errorf("expected nested value Live, got %s", s)
		}
	})

	t.Run("nil input gives empty record", func(t *testing.T) {
		rec := Normalize(nil)
		if rec.Fields == nil {
			t.Fatal("expected non-nil fields")
		}
		if !rec.Get("Anything").IsMissing() {
			t.Error("expected missing")
		}
	})

	t.Run("Has reports blank fields", func(t *testing.T) {
		rec := Normalize(map[string]any{"fields": map[string]any{"Notes": nil}})
		if !rec.Has("Notes") {
			t.Error("expected Notes to be present")
		}
		if !rec.Get("Notes").IsEmpty() {
			t.Error("expected Notes to be empty")
		}
	})
}

func TestValue(t *testing.T) {
	t.Run("missing is not empty", func(t *testing.T) {
		if Missing.IsEmpty() {
			t.Error("Missing should not report empty")
		}
		if !Missing.IsMissing() {
			t.Error("Missing should report missing")
		}
	})

	t.Run("IsEmpty", func(t *testing.T) {
		empties := []any{nil, "", []any{}, []string{}, map[string]any{}}
		for _, e := range empties {
			if !Present(e).IsEmpty() {
				t.Errorf("expected %#v to be empty", e)
			}
		}
		if Present(0.0).IsEmpty() {
			t.Error("zero number is a value, not empty")
		}
		if Present(false).IsEmpty() {
			t.Error("false is a value, not empty")
		}
	})

	t.Run("typed accessors", func(t *testing.T) {
		if f, ok := Present(3).Float(); !ok || f != 3 {
			t.Errorf("Float() = %v, %v", f, ok)
		}
		if _, ok := Present("3").Float(); ok {
			t.Error("string should not convert to float")
		}
		if b, ok := Present(true).Bool(); !ok || !b {
			t.Errorf("Bool() = %v, %v", b, ok)
		}
		if _, ok := Missing.String(); ok {
			t.Error("Missing should not yield a string")
		}
	})

	t.Run("Equal compares encodings", func(t *testing.T) {
		if !Present(5.0).Equal(5) {
			t.Error("5.0 should equal 5")
		}
		if !Present([]any{"recA", "recB"}).Equal([]string{"recA", "recB"}) {
			t.Error("link lists should compare equal")
		}
		if Present("Paid").Equal("Pending") {
			t.Error("different strings should not be equal")
		}
		if Missing.Equal(nil) {
			t.Error("Missing never equals anything")
		}
	})
}

func TestPatch(t *testing.T) {
	t.Run("Set mutates in place", func(t *testing.T) {
		p := Patch{}
		Set(p, "Paid", true)
		Set(p, "Status", "Paid")
		if len(p) != 2 || p["Paid"] != true {
			t.Errorf("unexpected patch %v", p)
		}
	})

	t.Run("Clone is independent", func(t *testing.T) {
		p := Patch{"Status": "Paid"}
		c := p.Clone()
		Set(c, "Status", "Void")
		if p["Status"] != "Paid" {
			t.Errorf("original patch mutated: %v", p)
		}
	})

	t.Run("Clone of nil", func(t *testing.T) {
		var p Patch
		if c := p.Clone(); c == nil {
			t.Error("expected empty non-nil clone")
		}
	})

	t.Run("Keys sorted", func(t *testing.T) {
		p := Patch{"b": 1, "a": 2, "c": 3}
		if got := p.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
			t.Errorf("Keys() = %v", got)
		}
	})
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		in      string
		key     string
		want    any
		wantErr bool
	}{
		{in: "Status=Paid", key: "Status", want: "Paid"},
		{in: "Budget=1500", key: "Budget", want: 1500.0},
		{in: "Paid=true", key: "Paid", want: true},
		{in: "Notes=null", key: "Notes", want: nil},
		{in: `Deal=["recA","recB"]`, key: "Deal", want: []any{"recA", "recB"}},
		{in: "Name=Spring Push", key: "Name", want: "Spring Push"},
		{in: "Link=https://a.b/c?d=e", key: "Link", want: "https://a.b/c?d=e"},
		{in: "Notes=", key: "Notes", want: ""},
		{in: " Owner =Sam", key: "Owner", want: "Sam"},
		{in: "NoEquals", wantErr: true},
		{in: "=value", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			key, val, err := ParseAssignment(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAssignment() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAssignment) {
					t.Errorf("expected ErrInvalidAssignment, got %v", err)
				}
				return
			}
			if key != tt.key {
				t.Errorf("key = %q, want %q", key, tt.key)
			}
			if !reflect.DeepEqual(val, tt.want) {
				t.Errorf("value = %#v, want %#v", val, tt.want)
			}
		})
	}

	t.Run("ParsePatch later wins", func(t *testing.T) {
		p, err := ParsePatch([]string{"Status=Pending", "Status=Paid", "Paid=true"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p["Status"] != "Paid" || p["Paid"] != true {
			t.Errorf("unexpected patch %v", p)
		}
	})

	t.Run("ParsePatch propagates errors", func(t *testing.T) {
		if _, err := ParsePatch([]string{"bad"}); err == nil {
			t.Error("expected error")
		}
	})
}
