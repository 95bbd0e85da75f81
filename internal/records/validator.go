package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/corvusHold/certify/internal/platform/validation"
)

const (
	ReasonInvalidFormat = "invalid email format"
	ReasonMissingEmail  = "missing email"
)

// Row is a data row that passed validation. Number is 1-based and excludes the header.
type Row struct {
	Number int
	Values Record
}

// InvalidEmail is a row excluded from generation because of its address.
type InvalidEmail struct {
	Row    int    `json:"row"`
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// Result is the classification of an uploaded table.
type Result struct {
	ValidRecords   []Row
	InvalidEmails  []InvalidEmail
	TotalRows      int
	ColumnNames    []string
	HasEmailColumn bool
	// MissingColumns lists placeholders with no matching header. Those
	// placeholders render empty; the rows are still generated.
	MissingColumns []string
}

// Validate parses a CSV table with a header row and classifies each data row
// against the template's placeholder names. It is a pure function of its
// input: re-validating the same bytes yields the same result.
func Validate(r io.Reader, placeholders []string) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var res Result
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}

	emailIdx := -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = h
		if emailIdx < 0 && strings.EqualFold(h, EmailColumn) {
			emailIdx = i
		}
	}
	res.ColumnNames = header
	res.HasEmailColumn = emailIdx >= 0
	res.MissingColumns = missingColumns(header, placeholders)

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row %d: %w", res.TotalRows+1, err)
		}
		if blank(fields) {
			continue
		}
		res.TotalRows++

		rec := make(Record, len(header))
		for i, h := range header {
			if h == "" || i >= len(fields) {
				continue
			}
			rec[h] = strings.TrimSpace(fields[i])
		}

		if emailIdx >= 0 {
			email := ""
			if emailIdx < len(fields) {
				email = strings.TrimSpace(fields[emailIdx])
			}
			switch {
			case email == "":
				res.InvalidEmails = append(res.InvalidEmails, InvalidEmail{Row: res.TotalRows, Email: email, Reason: ReasonMissingEmail})
				continue
			case !validation.IsEmail(email):
				res.InvalidEmails = append(res.InvalidEmails, InvalidEmail{Row: res.TotalRows, Email: email, Reason: ReasonInvalidFormat})
				continue
			}
		}
		res.ValidRecords = append(res.ValidRecords, Row{Number: res.TotalRows, Values: rec})
	}
	return res, nil
}

func missingColumns(header, placeholders []string) []string {
	var missing []string
	for _, p := range placeholders {
		found := false
		for _, h := range header {
			if strings.EqualFold(h, p) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, p)
		}
	}
	return missing
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
