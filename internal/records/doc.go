// Package records normalizes record-store records and builds field patches.
//
// # Record Shapes
//
// The record store returns records in two shapes depending on the endpoint:
//
//	{"id": "rec1", "createdTime": "...", "fields": {"Name": "Spring Push"}}
//	{"id": "rec1", "Name": "Spring Push"}
//
// [Normalize] collapses both into one [Record] at the store boundary. When a key
// appears in both places the nested value wins. Everything downstream reads
// fields through [Record.Get], which returns a [Value].
//
// # Missing vs Empty
//
// A field absent from the record yields [Missing]. A field that is present but
// blank ("" or null or an empty list) is a present [Value] for which
// [Value.IsEmpty] reports true. Callers must treat the two differently.
//
// # Schemas
//
// Each entity (deals, payments, campaigns) has a [Schema] declaring its fields,
// their [Kind] and whether they are required. [Schema.ValidatePatch] rejects
// patches that name unknown fields or carry values of the wrong kind.
package records
