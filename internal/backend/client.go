package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const DefaultBaseURL = "http://127.0.0.1:8000"

var (
	ErrUploadFailed = errors.New("upload failed")
	ErrStreamFailed = errors.New("stream request failed")
)

type UploadResult struct {
	Status      string `json:"status"`
	File        string `json:"file"`
	ChunksAdded int    `json:"chunks_added"`
}

type AskOptions struct {
	// Source restricts retrieval to one uploaded document. Empty means all.
	Source string
}

type Config struct {
	BaseURL    string
	SessionID  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the retrieval service. The base URL is fixed for the
// lifetime of the client.
type Client struct {
	baseURL   string
	sessionID string
	http      *http.Client
	logger    *slog.Logger
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// No Timeout: answers stream for as long as the server keeps the
		// connection open.
		hc = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{baseURL: base, sessionID: cfg.SessionID, http: hc, logger: logger}
}

func (c *Client) BaseURL() string   { return c.baseURL }
func (c *Client) SessionID() string { return c.sessionID }

// UploadDocument posts the file as multipart field "file". Any failure wraps
// ErrUploadFailed; callers are not expected to tell causes apart.
func (c *Client) UploadDocument(ctx context.Context, path string) (UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: open %s: %w", ErrUploadFailed, path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFilePart(mw, filepath.Base(path), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_pdf", pr)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: build request: %w", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("upload request failed", slog.String("path", path), slog.String("err", err.Error()))
		return UploadResult{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("upload rejected",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", strings.TrimSpace(string(detail))))
		return UploadResult{}, fmt.Errorf("%w: %s", ErrUploadFailed, resp.Status)
	}

	var res UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return UploadResult{}, fmt.Errorf("%w: decode response: %w", ErrUploadFailed, err)
	}
	c.logger.Info("document uploaded", slog.String("file", res.File), slog.Int("chunks", res.ChunksAdded))
	return res, nil
}

func writeFilePart(mw *multipart.Writer, name string, src io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy file body: %w", err)
	}
	return mw.Close()
}

// StreamAnswer opens the answer stream for question. The returned Stream
// yields fragments until the server closes the connection.
func (c *Client) StreamAnswer(ctx context.Context, question string, opts AskOptions) (*Stream, error) {
	q := url.Values{}
	q.Set("query", question)
	if c.sessionID != "" {
		q.Set("session_id", c.sessionID)
	}
	if src := strings.TrimSpace(opts.Source); src != "" {
		q.Set("source", src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stream?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrStreamFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrStreamFailed, resp.Status)
	}
	c.logger.Debug("answer stream opened", slog.String("source", opts.Source))
	return NewStream(resp.Body), nil
}
