package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// TotalState is the sentinel state name of the summary row.
const TotalState = "Total"

// Count is an optional non-negative integer table cell. A blank cell has
// Valid=false and Raw="". Text that did not parse keeps Raw so the validator
// can report it.
type Count struct {
	Value int
	Valid bool
	Raw   string
}

// Int returns a present count.
func Int(v int) Count { return Count{Value: v, Valid: true} }

// ParseCount converts a cell transcribed by the model. Thousands separators
// are accepted; anything else that is not an integer is kept as Raw.
func ParseCount(s string) Count {
	s = strings.TrimSpace(s)
	if s == "" {
		return Count{}
	}
	clean := strings.ReplaceAll(s, ",", "")
	n, err := strconv.Atoi(clean)
	if err != nil {
		return Count{Raw: s}
	}
	return Count{Value: n, Valid: true}
}

// CountFromPtr maps a nullable database column to a Count.
func CountFromPtr(p *int) Count {
	if p == nil {
		return Count{}
	}
	return Int(*p)
}

// Blank reports whether the cell was empty.
func (c Count) Blank() bool { return !c.Valid && c.Raw == "" }

// Unparseable reports whether the cell held non-integer text.
func (c Count) Unparseable() bool { return !c.Valid && c.Raw != "" }

// OrZero returns the value, treating blank and unparseable cells as 0.
func (c Count) OrZero() int {
	if !c.Valid {
		return 0
	}
	return c.Value
}

// Ptr returns the value as a nullable column, nil unless Valid.
func (c Count) Ptr() *int {
	if !c.Valid {
		return nil
	}
	v := c.Value
	return &v
}

func (c Count) String() string {
	if c.Valid {
		return strconv.Itoa(c.Value)
	}
	return c.Raw
}

// MarshalJSON writes a number, null for a blank cell, or the raw text.
func (c Count) MarshalJSON() ([]byte, error) {
	switch {
	case c.Valid:
		return []byte(strconv.Itoa(c.Value)), nil
	case c.Raw != "":
		return json.Marshal(c.Raw)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number, a string or null.
func (c *Count) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = Count{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*c = ParseCount(str)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if f != float64(int(f)) {
		*c = Count{Raw: s}
		return nil
	}
	*c = Int(int(f))
	return nil
}

// Row is one extracted table row.
type Row struct {
	State     string `json:"state"`
	Suspected Count  `json:"suspected"`
	Confirmed Count  `json:"confirmed"`
	Probable  Count  `json:"probable"`
	HCW       Count  `json:"hcw"`
	Deaths    Count  `json:"deaths"`
}

// IsTotal reports whether r is the summary row.
func (r Row) IsTotal() bool {
	return strings.EqualFold(strings.TrimSpace(r.State), TotalState)
}

// Empty reports whether every numeric cell is blank.
func (r Row) Empty() bool {
	return r.Suspected.Blank() && r.Confirmed.Blank() && r.Probable.Blank() &&
		r.HCW.Blank() && r.Deaths.Blank()
}

// CloneRows returns a copy of rows that shares no backing array.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// CaseRecord is an accepted row as persisted in lassa_data.
type CaseRecord struct {
	ReportID int64 `json:"report_id"`
	Year     int   `json:"year"` // four-digit
	Week     int   `json:"week"`
	Order    int   `json:"row_order"`
	Row
}

// CaseFilter narrows case listings.
type CaseFilter struct {
	Year int
	Week int
}
