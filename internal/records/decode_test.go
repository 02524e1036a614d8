package records

import (
	"errors"
	"testing"
)

func TestDecodeRecord(t *testing.T) {
	t.Run("nested shape", func(t *testing.T) {
		rec, err := DecodeRecord([]byte(`{"id":"rec1","createdTime":"2024-01-01T00:00:00.000Z","fields":{"Name":"Spring Push","Budget":1200}}`))
		if err != nil {
			t.Fatalf("DecodeRecord() error = %v", err)
		}
		if rec.ID != "rec1" {
			t.Errorf("expected id rec1, got %s", rec.ID)
		}
		if f, _ := rec.Get("Budget").Float(); f != 1200 {
			t.Errorf("expected budget 1200, got %v", f)
		}
	})

	t.Run("flat shape", func(t *testing.T) {
		rec, err := DecodeRecord([]byte(`{"id":"rec2","Name":"Summer Drop"}`))
		if err != nil {
			t.Fatalf("DecodeRecord() error = %v", err)
		}
		if s, _ := rec.Get("Name").String(); s != "Summer Drop" {
			t.Errorf("expected name Summer Drop, got %s", s)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if _, err := DecodeRecord([]byte(`{"id":`)); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("not an object", func(t *testing.T) {
		if _, err := DecodeRecord([]byte(`["rec1"]`)); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})
}

func TestDecodeRecords(t *testing.T) {
	t.Run("page with offset and mixed shapes", func(t *testing.T) {
		body := `{"records":[{"id":"rec1","fields":{"Status":"Live"}},{"id":"rec2","Status":"Booked"}],"offset":"itrNext"}`
		recs, offset, err := DecodeRecords([]byte(body))
		if err != nil {
			t.Fatalf("DecodeRecords() error = %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected 2 records, got %d", len(recs))
		}
		if offset != "itrNext" {
			t.Errorf("expected offset itrNext, got %q", offset)
		}
		if s, _ := recs[1].Get("Status").String(); s != "Booked" {
			t.Errorf("expected flat Status Booked, got %s", s)
		}
	})

	t.Run("last page", func(t *testing.T) {
		recs, offset, err := DecodeRecords([]byte(`{"records":[]}`))
		if err != nil {
			t.Fatalf("DecodeRecords() error = %v", err)
		}
		if len(recs) != 0 || offset != "" {
			t.Errorf("expected empty last page, got %d records offset %q", len(recs), offset)
		}
	})

	t.Run("missing records array", func(t *testing.T) {
		if _, _, err := DecodeRecords([]byte(`{"error":"NOT_FOUND"}`)); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("non-object entry", func(t *testing.T) {
		if _, _, err := DecodeRecords([]byte(`{"records":["rec1"]}`)); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("expected ErrMalformedRecord, got %v", err)
		}
	})
}
