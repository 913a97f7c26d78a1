// Package backend talks to the remote conversion, billing and archive API.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a3tai/facturx-bridge/internal/convert"
	"github.com/a3tai/facturx-bridge/internal/facturx"
)

// maxResponseSize bounds every backend answer
const maxResponseSize = 64 << 20

// Client is the HTTP client of the remote API. It implements
// convert.Backend, convert.Billing and convert.Archiver.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}

	c := &Client{base: u, http: &http.Client{Timeout: 2 * time.Minute}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type convertResponse struct {
	Profile    string `json:"profile"`
	PDFBase64  string `json:"pdf_base64"`
	XML        string `json:"xml"`
	Validation struct {
		PDFA3Converted bool `json:"pdfa3_converted"`
	} `json:"validation"`
}

// Convert sends the PDF and the record to the conversion endpoint
func (c *Client) Convert(ctx context.Context, req convert.BackendRequest) (*convert.BackendResult, error) {
	record, err := json.Marshal(req.Record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice data: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", fileName(req.FileName))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(req.PDF); err != nil {
		return nil, err
	}
	if err := mw.WriteField("invoice_data", string(record)); err != nil {
		return nil, err
	}
	if err := mw.WriteField("profile", req.Profile.String()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out convertResponse
	if err := c.do(ctx, "convert", "/invoices/convert-direct", req.Token, "", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}

	pdf, err := base64.StdEncoding.DecodeString(out.PDFBase64)
	if err != nil {
		return nil, &convert.DelegateError{Operation: "convert", Status: http.StatusBadGateway, Message: "backend returned invalid pdf_base64"}
	}
	return &convert.BackendResult{
		Profile:        out.Profile,
		PDF:            pdf,
		XML:            []byte(out.XML),
		PDFA3Converted: out.Validation.PDFA3Converted,
	}, nil
}

// Consume charges one credit for jobID
func (c *Client) Consume(ctx context.Context, token, jobID, idempotencyKey string) error {
	payload, err := json.Marshal(map[string]any{"job_id": jobID, "amount": 1})
	if err != nil {
		return err
	}
	err = c.do(ctx, "billing", "/billing/consume", token, idempotencyKey, "application/json", bytes.NewReader(payload), nil)

	var de *convert.DelegateError
	if errors.As(err, &de) && de.Status == http.StatusPaymentRequired {
		return fmt.Errorf("%s: %w", de.Message, convert.ErrInsufficientCredits)
	}
	return err
}

// archiveStatus marks a stored conversion as downloadable
const archiveStatus = "ready"

type archivePayload struct {
	FileID        string          `json:"file_id"`
	FileName      string          `json:"file_name"`
	Profile       string          `json:"profile"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	AmountTotal   string          `json:"amount_total"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	PDFBase64     string          `json:"pdf_base64"`
	XML           string          `json:"xml,omitempty"`
	Metadata      archiveMetadata `json:"metadata"`
}

type archiveMetadata struct {
	VendorName   string `json:"vendor_name,omitempty"`
	Path         string `json:"path"`
	PDFA3Valid   bool   `json:"pdfa3_valid"`
	XMLValid     bool   `json:"xml_valid"`
	FacturXValid bool   `json:"facturx_valid"`
}

// Archive records a finished conversion and returns the archive id
func (c *Client) Archive(ctx context.Context, token string, req convert.ArchiveRequest) (string, error) {
	payload, err := json.Marshal(archivePayload{
		FileID:        req.FileID,
		FileName:      fileName(req.FileName),
		Profile:       req.Profile,
		InvoiceNumber: req.InvoiceNumber,
		ClientName:    req.ClientName,
		AmountTotal:   req.AmountTTC,
		Currency:      facturx.Currency,
		Status:        archiveStatus,
		PDFBase64:     base64.StdEncoding.EncodeToString(req.PDF),
		XML:           string(req.XML),
		Metadata: archiveMetadata{
			VendorName:   req.VendorName,
			Path:         req.Path,
			PDFA3Valid:   req.Validation.PDFA3Valid,
			XMLValid:     req.Validation.XMLValid,
			FacturXValid: req.Validation.FacturXValid,
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "archive", "/conversions/archive", token, req.IdempotencyKey, "application/json", bytes.NewReader(payload), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &convert.DelegateError{Operation: "archive", Status: http.StatusBadGateway, Message: "archive returned no id"}
	}
	return out.ID, nil
}

// do posts body to path and decodes a JSON answer into out. Non-2xx answers
// and transport failures become *convert.DelegateError; status 0 marks a
// transport failure.
func (c *Client) do(ctx context.Context, operation, path, token, idempotencyKey, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &convert.DelegateError{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &convert.DelegateError{Operation: operation, Message: "failed to read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &convert.DelegateError{Operation: operation, Status: resp.StatusCode, Message: remoteMessage(data, resp.Status)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &convert.DelegateError{Operation: operation, Status: http.StatusBadGateway, Message: "invalid JSON response: " + err.Error()}
	}
	return nil
}

// remoteMessage pulls the error text out of a backend answer, keeping it
// verbatim
func remoteMessage(data []byte, fallback string) string {
	var env struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &env) == nil {
		switch d := env.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 512 {
		return text
	}
	return fallback
}

func fileName(name string) string {
	if name == "" {
		return "invoice.pdf"
	}
	return name
}
