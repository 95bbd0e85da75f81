package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) *CertifyClient {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return &CertifyClient{BaseURL: "https://api.certify.test", Token: "session", APIKey: "ck_live", HTTP: hc}
}

func TestStartBatch_SendsMultipartWithSession(t *testing.T) {
	c := newMockClient(t)
	httpmock.RegisterResponder("POST", "https://api.certify.test/api/v1/batches",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer session", req.Header.Get("Authorization"))
			require.NoError(t, req.ParseMultipartForm(1<<20))
			assert.Equal(t, "Spring cohort", req.FormValue("name"))
			assert.Equal(t, "0b8c4a4e-6a7e-4d55-9d5e-1a0c7f6e9b11", req.FormValue("template_id"))
			f, hdr, err := req.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			assert.Equal(t, "people.csv", hdr.Filename)
			return httpmock.NewJsonResponse(201, map[string]any{
				"batch":          map[string]any{"name": "Spring cohort", "status": "completed", "progress": map[string]int{"total": 2, "succeeded": 2}},
				"missingColumns": []string{"course"},
			})
		})

	res, err := c.StartBatch(BatchRequest{
		TemplateID: "0b8c4a4e-6a7e-4d55-9d5e-1a0c7f6e9b11",
		Name:       "Spring cohort",
		FileName:   "/tmp/people.csv",
		File:       strings.NewReader("name,email\nAlice,alice@example.com\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batch.Progress.Succeeded)
	assert.Equal(t, []string{"course"}, res.MissingColumns)
}

func TestGenerate_UsesAPIKey(t *testing.T) {
	c := newMockClient(t)
	httpmock.RegisterResponder("POST", "https://api.certify.test/api/v1/certificates/generate",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer ck_live", req.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "bob@example.com", body["email"])
			assert.Equal(t, map[string]any{"Name": "Bob"}, body["placeholders"])
			return httpmock.NewJsonResponse(201, map[string]string{
				"certificateUrl": "https://cdn.example.com/c.png",
				"certificateId":  "7d3f6a3e-6f5f-4a55-8f0e-2b7e3f1d9c20",
			})
		})

	res, err := c.Generate("tpl", "bob@example.com", map[string]string{"Name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/c.png", res.CertificateURL)
}

func TestClient_InsufficientTokensError(t *testing.T) {
	c := newMockClient(t)
	httpmock.RegisterResponder("POST", "https://api.certify.test/api/v1/certificates/generate",
		httpmock.NewJsonResponderOrPanic(402, map[string]any{"error": "Insufficient tokens", "required": 1, "available": 0}))

	_, err := c.Generate("tpl", "bob@example.com", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, 1, apiErr.Required)
	assert.Contains(t, err.Error(), "available 0")
}

func TestClient_PlainTextError(t *testing.T) {
	c := newMockClient(t)
	httpmock.RegisterResponder("GET", "https://api.certify.test/api/v1/certificates/validate/nope",
		httpmock.NewStringResponder(502, "bad gateway"))

	_, err := c.Verify("nope")
	require.Error(t, err)
	assert.Equal(t, "API error (502): bad gateway", err.Error())
}

func TestVerify_NoAuthorizationHeader(t *testing.T) {
	c := newMockClient(t)
	httpmock.RegisterResponder("GET", "https://api.certify.test/api/v1/certificates/validate/abc",
		func(req *http.Request) (*http.Response, error) {
			assert.Empty(t, req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(200, map[string]any{
				"certificate": map[string]any{"uniqueIdentifier": "abc"},
				"creator":     map[string]any{"name": "Ada"},
				"imageUrl":    "https://cdn.example.com/abc.png",
			})
		})

	v, err := c.Verify("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", v.Certificate.UniqueIdentifier)
	assert.Equal(t, "Ada", v.Creator.Name)
}

func TestRevokeAPIKey_NoContent(t *testing.T) {
	c := newMockClient(t)
	httpmock.RegisterResponder("DELETE", "https://api.certify.test/api/v1/apikeys/k1",
		httpmock.NewStringResponder(204, ""))

	require.NoError(t, c.RevokeAPIKey("k1"))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"Name=Alice", " course =Go 101", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Name": "Alice", "course": "Go 101", "note": "a=b"}, got)

	_, err = parsePairs([]string{"missing"})
	assert.Error(t, err)
	_, err = parsePairs([]string{"=x"})
	assert.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("abcd"))
	assert.Equal(t, "ck_l****5678", maskToken("ck_live_5678"))
}

func TestValidateCSV_Table(t *testing.T) {
	var out bytes.Buffer
	in := "Name,Email\nAlice,alice@example.com\nBob,not-an-email\n"
	require.NoError(t, validateCSV(&out, strings.NewReader(in), []string{"Name", "Course"}))

	s := out.String()
	assert.Contains(t, s, "valid               : 1")
	assert.Contains(t, s, "invalid emails      : 1")
	assert.Contains(t, s, "Course (rendered empty)")
	assert.Contains(t, s, "row 2:")
}
