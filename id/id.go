// Package id defines TypeID-based identifiers for every record the dues
// engine persists.
//
// A single ID struct carries a prefix naming the record type, so a receipt
// ID can never be confused with a due ID once parsed. IDs are K-sortable
// (UUIDv7 underneath) and render as "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

// Prefix constants for all persisted records.
const (
	PrefixPlayer       Prefix = "plr"  // Player billing profile
	PrefixDue          Prefix = "due"  // Monthly due
	PrefixAttendance   Prefix = "att"  // Attendance unit
	PrefixEvent        Prefix = "evt"  // Event
	PrefixCategory     Prefix = "ecat" // Event category
	PrefixRegistration Prefix = "reg"  // Event registration
	PrefixReceipt      Prefix = "rcpt" // Receipt
)

// ID is the identifier type for all records.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "rcpt_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires the given prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Record identifiers
// ──────────────────────────────────────────────────

// PlayerID identifies a player billing profile (prefix: "plr").
type PlayerID = ID

// DueID identifies a monthly due (prefix: "due").
type DueID = ID

// AttendanceID identifies an attendance unit (prefix: "att").
type AttendanceID = ID

// EventID identifies an event (prefix: "evt").
type EventID = ID

// CategoryID identifies an event category (prefix: "ecat").
type CategoryID = ID

// RegistrationID identifies an event registration (prefix: "reg").
type RegistrationID = ID

// ReceiptID identifies a receipt (prefix: "rcpt").
type ReceiptID = ID

// NewPlayerID generates a new player ID.
func NewPlayerID() ID { return New(PrefixPlayer) }

// NewDueID generates a new due ID.
func NewDueID() ID { return New(PrefixDue) }

// NewAttendanceID generates a new attendance ID.
func NewAttendanceID() ID { return New(PrefixAttendance) }

// NewEventID generates a new event ID.
func NewEventID() ID { return New(PrefixEvent) }

// NewCategoryID generates a new category ID.
func NewCategoryID() ID { return New(PrefixCategory) }

// NewRegistrationID generates a new registration ID.
func NewRegistrationID() ID { return New(PrefixRegistration) }

// NewReceiptID generates a new receipt ID.
func NewReceiptID() ID { return New(PrefixReceipt) }

func ParsePlayerID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixPlayer) }
func ParseDueID(s string) (ID, error)          { return ParseWithPrefix(s, PrefixDue) }
func ParseAttendanceID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixAttendance) }
func ParseEventID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixEvent) }
func ParseCategoryID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixCategory) }
func ParseRegistrationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRegistration) }
func ParseReceiptID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixReceipt) }

// ParseAny parses s without checking the prefix.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Ptr returns a pointer to a copy of i, or nil for Nil.
func (i ID) Ptr() *ID {
	if !i.valid {
		return nil
	}
	return &i
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL for optional references
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
