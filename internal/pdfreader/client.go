package pdfreader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client implements Opener against a pdfplumber-style extraction
// sidecar. The sidecar receives the document bytes and answers with
// plain text and table grids per page; region crops are resolved with a
// follow-up call carrying the same bytes.
type Client struct {
	client  *resty.Client
	baseURL string
}

// ClientConfig holds configuration for the extraction sidecar client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new sidecar client.
func NewClient(cfg *ClientConfig) *Client {
	client := resty.New()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
	}
}

type extractResponse struct {
	Pages []pagePayload `json:"pages"`
}

type pagePayload struct {
	Text   string  `json:"text"`
	Tables []Table `json:"tables"`
}

type cropResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Open uploads the document to the sidecar and materializes its pages.
func (c *Client) Open(ctx context.Context, path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var result extractResponse
	var apiErr errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(path), bytes.NewReader(data)).
		SetResult(&result).
		SetError(&apiErr).
		Post(c.baseURL + "/v1/extract")
	if err != nil {
		return nil, fmt.Errorf("extraction sidecar unreachable: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrCorruptDocument, apiErr.Error)
	}

	doc := &remoteDocument{client: c, data: data, name: filepath.Base(path)}
	for i, p := range result.Pages {
		doc.pages = append(doc.pages, &remotePage{doc: doc, index: i, payload: p})
	}
	return doc, nil
}

type remoteDocument struct {
	client *Client
	data   []byte
	name   string
	pages  []Page
}

func (d *remoteDocument) Pages() []Page { return d.pages }
func (d *remoteDocument) Close() error  { d.data = nil; return nil }

type remotePage struct {
	doc     *remoteDocument
	index   int
	payload pagePayload
}

func (p *remotePage) Text() string    { return p.payload.Text }
func (p *remotePage) Tables() []Table { return p.payload.Tables }

// CropText asks the sidecar for the text inside a proportional region of
// this page.
func (p *remotePage) CropText(ctx context.Context, r Region) (string, error) {
	var result cropResponse
	var apiErr errorResponse
	resp, err := p.doc.client.client.R().
		SetContext(ctx).
		SetFileReader("file", p.doc.name, bytes.NewReader(p.doc.data)).
		SetFormData(map[string]string{
			"page":   strconv.Itoa(p.index),
			"left":   formatFraction(r.Left),
			"top":    formatFraction(r.Top),
			"right":  formatFraction(r.Right),
			"bottom": formatFraction(r.Bottom),
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(p.doc.client.baseURL + "/v1/crop")
	if err != nil {
		return "", fmt.Errorf("extraction sidecar unreachable: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s", ErrCorruptDocument, apiErr.Error)
	}
	return result.Text, nil
}

func formatFraction(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
