package records

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// DecodeRecord parses a single record body in either shape.
func DecodeRecord(body []byte) (Record, error) {
	if !gjson.ValidBytes(body) {
		return Record{}, fmt.Errorf("%w: invalid JSON", ErrMalformedRecord)
	}

	res := gjson.ParseBytes(body)
	raw, ok := res.Value().(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedRecord, res.Type)
	}

	return Normalize(raw), nil
}

// DecodeRecords parses a list page and returns its records and the paging offset, if any.
func DecodeRecords(body []byte) ([]Record, string, error) {
	if !gjson.ValidBytes(body) {
		return nil, "", fmt.Errorf("%w: invalid JSON", ErrMalformedRecord)
	}

	list := gjson.GetBytes(body, "records")
	if !list.IsArray() {
		return nil, "", fmt.Errorf("%w: missing records array", ErrMalformedRecord)
	}

	var out []Record
	var decodeErr error
	list.ForEach(func(_, item gjson.Result) bool {
		raw, ok := item.Value().(map[string]any)
		if !ok {
			decodeErr = fmt.Errorf("%w: record %d is %s", ErrMalformedRecord, len(out), item.Type)
			return false
		}
		out = append(out, Normalize(raw))
		return true
	})
	if decodeErr != nil {
		return nil, "", decodeErr
	}

	return out, gjson.GetBytes(body, "offset").String(), nil
}
