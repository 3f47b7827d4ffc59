package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	dues "github.com/xraph/dues"
)

// Import errors.
var (
	ErrEmptyFile     = errors.New("export: file is empty")
	ErrMissingHeader = errors.New("export: header row missing")
	ErrMissingColumn = errors.New("export: required column missing")
)

// ReadPlayers parses a players CSV into inputs for dues.Engine.ImportPlayers.
// Columns are matched by header name in any order; only key is required.
// A leading UTF-8 byte order mark is skipped.
func ReadPlayers(r io.Reader) ([]dues.PlayerInput, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("export: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if len(cols) == 0 {
		return nil, ErrMissingHeader
	}
	if _, ok := cols["key"]; !ok {
		return nil, fmt.Errorf("%w: key", ErrMissingColumn)
	}

	var inputs []dues.PlayerInput
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		in := dues.PlayerInput{
			Key:       field("key"),
			FirstName: field("first_name"),
			LastName:  field("last_name"),
			Belt:      field("belt"),
			Email:     field("email"),
			Phone:     field("phone"),
			IsMonthly: parseYes(field("is_monthly")),
		}
		if in.Key == "" {
			continue
		}
		if fee := field("monthly_fee"); fee != "" {
			v, err := strconv.ParseInt(fee, 10, 64)
			if err != nil {
				return nil, dues.ValidationError{Field: "monthly_fee", Message: fmt.Sprintf("line %d: not a whole amount", line)}
			}
			in.MonthlyFee = &v
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func parseYes(s string) bool {
	switch strings.ToLower(s) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}
