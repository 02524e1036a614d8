package records

import (
	"fmt"
	"slices"
	"time"
)

// Kind is the declared type of a field.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
	KindDate
	KindSelect
	KindLinks
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindSelect:
		return "select"
	case KindLinks:
		return "links"
	default:
		return "unknown"
	}
}

// Field declares one field of an entity.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Options  []string // allowed values for KindSelect; empty allows any
}

// Schema is the static field declaration of one entity.
type Schema struct {
	Entity string
	Fields []Field
}

// Field looks up a declared field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValidatePatch checks every patch entry against the schema.
//
// A nil value clears an optional field; clearing a required field is rejected.
func (s Schema) ValidatePatch(p Patch) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty patch for %s", ErrInvalidValue, s.Entity)
	}

	for _, name := range p.Keys() {
		f, ok := s.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, s.Entity, name)
		}
		if err := f.check(p[name]); err != nil {
			return fmt.Errorf("%s.%s: %w", s.Entity, name, err)
		}
	}

	return nil
}

// MissingRequired lists required fields absent from r, in declaration order.
func (s Schema) MissingRequired(r Record) []string {
	var missing []string
	for _, f := range s.Fields {
		if f.Required && r.Get(f.Name).IsMissing() {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func (f Field) check(v any) error {
	if v == nil {
		if f.Required {
			return fmt.Errorf("%w: cannot clear required field", ErrInvalidValue)
		}
		return nil
	}

	val := Present(v)
	switch f.Kind {
	case KindText:
		if _, ok := val.String(); !ok {
			return f.mismatch(v)
		}
	case KindNumber:
		if _, ok := val.Float(); !ok {
			return f.mismatch(v)
		}
	case KindBool:
		if _, ok := val.Bool(); !ok {
			return f.mismatch(v)
		}
	case KindDate:
		s, ok := val.String()
		if !ok || !isDate(s) {
			return f.mismatch(v)
		}
	case KindSelect:
		s, ok := val.String()
		if !ok {
			return f.mismatch(v)
		}
		if len(f.Options) > 0 && !slices.Contains(f.Options, s) {
			return fmt.Errorf("%w: %q is not one of %v", ErrInvalidValue, s, f.Options)
		}
	case KindLinks:
		if !isLinkList(v) {
			return f.mismatch(v)
		}
	}
	return nil
}

func (f Field) mismatch(v any) error {
	return fmt.Errorf("%w: expected %s, got %T", ErrInvalidValue, f.Kind, v)
}

func isDate(s string) bool {
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func isLinkList(v any) bool {
	switch l := v.(type) {
	case []string:
		return true
	case []any:
		for _, item := range l {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

var (
	campaignStatus = []string{"Pitched", "Booked", "Live", "Completed", "Cancelled"}

	// DealSchema describes rows of the deal pipeline.
	DealSchema = Schema{
		Entity: "deals",
		Fields: []Field{
			{Name: "Name", Kind: KindText, Required: true},
			{Name: "Stage", Kind: KindSelect, Required: true, Options: []string{"Lead", "Contacted", "Proposal Sent", "Negotiating", "Won", "Lost"}},
			{Name: "Value", Kind: KindNumber},
			{Name: "Owner", Kind: KindText},
			{Name: "Close Date", Kind: KindDate},
			{Name: "Proposal Sent", Kind: KindBool},
			{Name: "Campaigns", Kind: KindLinks},
			{Name: "Notes", Kind: KindText},
		},
	}

	// PaymentSchema describes rows of the payment tracker.
	PaymentSchema = Schema{
		Entity: "payments",
		Fields: []Field{
			{Name: "Invoice", Kind: KindText, Required: true},
			{Name: "Amount", Kind: KindNumber, Required: true},
			{Name: "Status", Kind: KindSelect, Options: []string{"Pending", "Sent", "Paid", "Overdue", "Void"}},
			{Name: "Paid", Kind: KindBool},
			{Name: "Paid Date", Kind: KindDate},
			{Name: "Deal", Kind: KindLinks},
			{Name: "Notes", Kind: KindText},
		},
	}

	// CampaignSchema describes rows shared by the Spotify, Instagram and SoundCloud campaign tables.
	CampaignSchema = Schema{
		Entity: "campaigns",
		Fields: []Field{
			{Name: "Name", Kind: KindText, Required: true},
			{Name: "Status", Kind: KindSelect, Options: campaignStatus},
			{Name: "Budget", Kind: KindNumber},
			{Name: "Start Date", Kind: KindDate},
			{Name: "End Date", Kind: KindDate},
			{Name: "Paid", Kind: KindBool},
			{Name: "Curator", Kind: KindText},
			{Name: "Link", Kind: KindText},
			{Name: "Streams", Kind: KindNumber},
			{Name: "Deal", Kind: KindLinks},
			{Name: "Notes", Kind: KindText},
		},
	}
)

var schemas = map[string]Schema{
	"deals":      DealSchema,
	"payments":   PaymentSchema,
	"campaigns":  CampaignSchema,
	"spotify":    CampaignSchema,
	"instagram":  CampaignSchema,
	"soundcloud": CampaignSchema,
}

// SchemaFor returns the schema for a logical table name.
func SchemaFor(name string) (Schema, bool) {
	s, ok := schemas[name]
	return s, ok
}
