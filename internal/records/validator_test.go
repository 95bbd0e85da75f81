package records

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AliceAndBob(t *testing.T) {
	csv := "Name,Course,Email\nAlice,CS101,alice@x.com\nBob,CS101,not-an-email\n"
	res, err := Validate(strings.NewReader(csv), []string{"Name", "Course"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalRows)
	require.Len(t, res.ValidRecords, 1)
	assert.Equal(t, "Alice", res.ValidRecords[0].Values["Name"])
	assert.Equal(t, "alice@x.com", res.ValidRecords[0].Values.Email())
	require.Len(t, res.InvalidEmails, 1)
	assert.Equal(t, "not-an-email", res.InvalidEmails[0].Email)
	assert.Equal(t, ReasonInvalidFormat, res.InvalidEmails[0].Reason)
	assert.Equal(t, 2, res.InvalidEmails[0].Row)
	assert.Equal(t, res.TotalRows, len(res.ValidRecords)+len(res.InvalidEmails))
}

func TestValidate_EmptyInput(t *testing.T) {
	res, err := Validate(strings.NewReader(""), []string{"Name"})
	require.NoError(t, err)
	assert.Zero(t, res.TotalRows)
	assert.Empty(t, res.ValidRecords)
}

func TestValidate_NoEmailColumn(t *testing.T) {
	res, err := Validate(strings.NewReader("Name\nAlice\nBob\n"), []string{"Name"})
	require.NoError(t, err)
	assert.False(t, res.HasEmailColumn)
	assert.Len(t, res.ValidRecords, 2)
	assert.Empty(t, res.ValidRecords[0].Values.Email())
}

func TestValidate_CaseInsensitiveEmailHeaderAndBOM(t *testing.T) {
	csv := "\ufeffname,EMAIL\nAlice,alice@x.com\nAlice,alice@x.com\n,\nCarl,\n"
	res, err := Validate(strings.NewReader(csv), []string{"Name", "Course"})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "EMAIL"}, res.ColumnNames)
	assert.Equal(t, 3, res.TotalRows, "blank line is skipped")
	assert.Len(t, res.ValidRecords, 2, "duplicates are kept")
	require.Len(t, res.InvalidEmails, 1)
	assert.Equal(t, ReasonMissingEmail, res.InvalidEmails[0].Reason)
	assert.Equal(t, []string{"Course"}, res.MissingColumns)

	v, ok := res.ValidRecords[0].Values.Lookup("Name")
	assert.True(t, ok)
	assert.Equal(t, "Alice", v)
}

func TestValidate_RaggedRowsTolerated(t *testing.T) {
	res, err := Validate(strings.NewReader("Name,Course,Email\nAlice,,alice@x.com\nBob\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalRows)
	require.Len(t, res.InvalidEmails, 1)
	assert.Equal(t, "", res.InvalidEmails[0].Email)
	_, ok := res.ValidRecords[0].Values.Lookup("Course")
	assert.True(t, ok)
}

func TestValidate_Idempotent(t *testing.T) {
	csv := "Name,Email\nA,a@x.com\nB,bad\nC,c@x\n"
	first, err := Validate(strings.NewReader(csv), []string{"Name"})
	require.NoError(t, err)
	second, err := Validate(strings.NewReader(csv), []string{"Name"})
	require.NoError(t, err)
	assert.Equal(t, first.InvalidEmails, second.InvalidEmails)
	assert.Equal(t, first.TotalRows, second.TotalRows)
}

func TestMissingPlaceholders(t *testing.T) {
	values := Record{"name": "Alice", "COURSE": ""}
	assert.Empty(t, MissingPlaceholders([]string{"Name", "Course"}, values))
	assert.Equal(t, []string{"Date"}, MissingPlaceholders([]string{"Name", "Date"}, values))
}
