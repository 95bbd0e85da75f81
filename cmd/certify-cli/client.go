package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	adomain "github.com/corvusHold/certify/internal/apikeys/domain"
	cdomain "github.com/corvusHold/certify/internal/certificates/domain"
	tdomain "github.com/corvusHold/certify/internal/tokens/domain"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

// CertifyClient talks to the Certify HTTP API.
type CertifyClient struct {
	BaseURL string
	// Token is the session token for account endpoints.
	Token string
	// APIKey authenticates the external generate endpoint.
	APIKey string
	HTTP   *http.Client
}

// API response structures
type BatchResponse struct {
	Batch          cdomain.Batch `json:"batch"`
	MissingColumns []string      `json:"missingColumns,omitempty"`
}

type FailuresResponse struct {
	Failed        []cdomain.FailedCertificate `json:"failedCertificates"`
	InvalidEmails []cdomain.InvalidEmail      `json:"invalidEmails"`
}

type GenerateResponse struct {
	CertificateURL string    `json:"certificateUrl"`
	CertificateID  uuid.UUID `json:"certificateId"`
}

type VerifyResponse struct {
	Certificate cdomain.Certificate `json:"certificate"`
	Creator     udomain.Public      `json:"creator"`
	ImageURL    string              `json:"imageUrl"`
}

type TokensResponse struct {
	Balance int                   `json:"balance"`
	History []tdomain.Transaction `json:"history"`
}

type APIKeyResponse struct {
	Key    string         `json:"key"`
	APIKey adomain.APIKey `json:"apiKey"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Required  int    `json:"required,omitempty"`
	Available int    `json:"available,omitempty"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status int
	ErrorResponse
}

func (e *APIError) Error() string {
	if e.Status == http.StatusPaymentRequired {
		return fmt.Sprintf("API error (%d): %s (required %d, available %d)", e.Status, e.ErrorResponse.Error, e.Required, e.Available)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.ErrorResponse.Error)
}

// BatchRequest is the multipart upload for a new batch.
type BatchRequest struct {
	TemplateID string
	Name       string
	CC         string
	BCC        string
	FileName   string
	File       io.Reader
}

func (c *CertifyClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (c *CertifyClient) do(req *http.Request, bearer string, target any) error {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	logVerbose("Making %s request to %s", req.Method, req.URL)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	logVerbose("Response status: %s", resp.Status)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, &apiErr.ErrorResponse); err != nil || apiErr.ErrorResponse.Error == "" {
			apiErr.ErrorResponse.Error = string(body)
		}
		return apiErr
	}
	if target != nil && len(body) > 0 {
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *CertifyClient) jsonRequest(method, path string, body any) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *CertifyClient) StartBatch(in BatchRequest) (BatchResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"template_id": in.TemplateID, "name": in.Name, "cc": in.CC, "bcc": in.BCC} {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return BatchResponse{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(in.FileName))
	if err != nil {
		return BatchResponse{}, err
	}
	if _, err := io.Copy(fw, in.File); err != nil {
		return BatchResponse{}, fmt.Errorf("read csv: %w", err)
	}
	if err := mw.Close(); err != nil {
		return BatchResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/v1/batches", &buf)
	if err != nil {
		return BatchResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out BatchResponse
	return out, c.do(req, c.Token, &out)
}

func (c *CertifyClient) GetBatch(id string) (cdomain.Batch, error) {
	var out cdomain.Batch
	req, err := c.jsonRequest(http.MethodGet, "/api/v1/batches/"+url.PathEscape(id), nil)
	if err != nil {
		return out, err
	}
	return out, c.do(req, c.Token, &out)
}

func (c *CertifyClient) BatchFailures(id string) (FailuresResponse, error) {
	var out FailuresResponse
	req, err := c.jsonRequest(http.MethodGet, "/api/v1/batches/"+url.PathEscape(id)+"/failures", nil)
	if err != nil {
		return out, err
	}
	return out, c.do(req, c.Token, &out)
}

func (c *CertifyClient) Generate(templateID, email string, placeholders map[string]string) (GenerateResponse, error) {
	var out GenerateResponse
	req, err := c.jsonRequest(http.MethodPost, "/api/v1/certificates/generate", map[string]any{
		"templateId":   templateID,
		"email":        email,
		"placeholders": placeholders,
	})
	if err != nil {
		return out, err
	}
	return out, c.do(req, c.APIKey, &out)
}

func (c *CertifyClient) Verify(uid string) (VerifyResponse, error) {
	var out VerifyResponse
	req, err := c.jsonRequest(http.MethodGet, "/api/v1/certificates/validate/"+url.PathEscape(uid), nil)
	if err != nil {
		return out, err
	}
	return out, c.do(req, "", &out)
}

func (c *CertifyClient) Tokens() (TokensResponse, error) {
	var out TokensResponse
	req, err := c.jsonRequest(http.MethodGet, "/api/v1/tokens", nil)
	if err != nil {
		return out, err
	}
	return out, c.do(req, c.Token, &out)
}

func (c *CertifyClient) CreateAPIKey(ttl string) (APIKeyResponse, error) {
	var out APIKeyResponse
	req, err := c.jsonRequest(http.MethodPost, "/api/v1/apikeys", map[string]string{"ttl": ttl})
	if err != nil {
		return out, err
	}
	return out, c.do(req, c.Token, &out)
}

func (c *CertifyClient) RevokeAPIKey(id string) error {
	req, err := c.jsonRequest(http.MethodDelete, "/api/v1/apikeys/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, c.Token, nil)
}

func (c *CertifyClient) Health() (map[string]any, error) {
	var out map[string]any
	req, err := c.jsonRequest(http.MethodGet, "/healthz", nil)
	if err != nil {
		return nil, err
	}
	return out, c.do(req, "", &out)
}

func printBatch(b cdomain.Batch) {
	fmt.Printf("%-20s: %s\n", "id", b.ID)
	fmt.Printf("%-20s: %s\n", "name", b.Name)
	fmt.Printf("%-20s: %s\n", "status", b.Status)
	fmt.Printf("%-20s: %d/%d\n", "processed", b.Progress.Processed, b.Progress.Total)
	fmt.Printf("%-20s: %d\n", "succeeded", b.Progress.Succeeded)
	fmt.Printf("%-20s: %d\n", "failed", b.Progress.Failed)
	fmt.Printf("%-20s: %d\n", "invalid emails", b.Progress.InvalidEmails)
}
