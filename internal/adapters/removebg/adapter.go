// Package removebg adapts the remove.bg HTTP API to the provider contract.
package removebg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
)

const (
	defaultBaseURL = "https://api.remove.bg/v1.0"

	// maxErrorBodyBytes bounds how much of an error response is read.
	maxErrorBodyBytes = 4 * 1024
)

// Options configures the remove.bg adapter.
type Options struct {
	APIKey     string
	BaseURL    string // defaults to the hosted API
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Adapter implements core.ProviderAdapter against the remove.bg API.
type Adapter struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ core.ProviderAdapter = (*Adapter)(nil)

// New constructs a remove.bg adapter.
func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("remove.bg api key is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		apiKey:  opts.APIKey,
		baseURL: base,
		http:    hc,
		logger:  logger.With("component", "removebg_adapter"),
	}, nil
}

// ID returns the provider identifier.
func (a *Adapter) ID() model.ProviderID {
	return model.ProviderRemoveBG
}

// IsAvailable probes the account endpoint to confirm the API is reachable
// and the key is active.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	info, err := a.GetAccountInfo(ctx)
	return err == nil && info.IsActive
}

// RemoveBackground submits raw image bytes for background removal.
func (a *Adapter) RemoveBackground(ctx context.Context, req core.RemoveRequest) (*model.RemovalResult, error) {
	if len(req.ImageBytes) == 0 {
		if req.ImageURL != "" {
			return a.RemoveBackgroundFromURL(ctx, req.ImageURL, req.Output)
		}
		return nil, errors.New("image bytes or url required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image_file", "image")
	if err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := fw.Write(req.ImageBytes); err != nil {
		return nil, fmt.Errorf("write image bytes: %w", err)
	}
	if err := writeOutputFields(mw, req.Output); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart form: %w", err)
	}

	return a.submit(ctx, &body, mw.FormDataContentType())
}

// RemoveBackgroundFromURL submits a fetchable image URL for background removal.
func (a *Adapter) RemoveBackgroundFromURL(
	ctx context.Context,
	imageURL string,
	opts model.OutputOptions,
) (*model.RemovalResult, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, errors.New("image url is required")
	}

	form := url.Values{}
	form.Set("image_url", imageURL)
	applyOutputValues(form, opts)

	return a.submit(ctx, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (a *Adapter) submit(ctx context.Context, body io.Reader, contentType string) (*model.RemovalResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/removebg", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call remove.bg: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		code, msg := decodeErrorBody(resp)
		return &model.RemovalResult{
			Success:          false,
			ProcessingTimeMs: elapsed.Milliseconds(),
			ErrorCode:        code,
			ErrorMessage:     msg,
		}, nil
	}

	imageBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result image: %w", err)
	}

	credits := 1.0
	if v := resp.Header.Get("X-Credits-Charged"); v != "" {
		if parsed, parseErr := strconv.ParseFloat(v, 64); parseErr == nil {
			credits = parsed
		}
	}

	return &model.RemovalResult{
		Success:          true,
		ImageBytes:       imageBytes,
		ContentType:      resp.Header.Get("Content-Type"),
		ProcessingTimeMs: elapsed.Milliseconds(),
		CreditsConsumed:  credits,
	}, nil
}

// GetAccountInfo fetches the credit balance for the configured key.
func (a *Adapter) GetAccountInfo(ctx context.Context) (*model.ProviderAccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/account", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call remove.bg account: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, msg := decodeErrorBody(resp)
		return nil, fmt.Errorf("remove.bg account returned status %d: %s", resp.StatusCode, msg)
	}

	var payload struct {
		Data struct {
			Attributes struct {
				Credits struct {
					Total float64 `json:"total"`
				} `json:"credits"`
				API struct {
					FreeCalls int `json:"free_calls"`
				} `json:"api"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode account response: %w", err)
	}

	return &model.ProviderAccountInfo{
		AvailableCredits: payload.Data.Attributes.Credits.Total,
		IsActive:         true,
	}, nil
}

// writeOutputFields adds the output options to a multipart form.
func writeOutputFields(mw *multipart.Writer, opts model.OutputOptions) error {
	fields := outputFields(opts)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	return nil
}

func applyOutputValues(form url.Values, opts model.OutputOptions) {
	for k, v := range outputFields(opts) {
		form.Set(k, v)
	}
}

func outputFields(opts model.OutputOptions) map[string]string {
	fields := make(map[string]string, 3)
	if opts.Format != "" {
		// remove.bg calls JPEG "jpg".
		format := string(opts.Format)
		if opts.Format == model.OutputFormatJPEG {
			format = "jpg"
		}
		fields["format"] = format
	}
	size := opts.Size
	if size == "" {
		size = "auto"
	}
	fields["size"] = size
	return fields
}

// decodeErrorBody extracts a stable error code and message from a non-200
// response. remove.bg returns a JSON errors array with a title per entry.
func decodeErrorBody(resp *http.Response) (code, msg string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var payload struct {
		Errors []struct {
			Title string `json:"title"`
			Code  string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		first := payload.Errors[0]
		if first.Code != "" {
			return normalizeErrorCode(first.Code, resp.StatusCode), first.Title
		}
		return statusErrorCode(resp.StatusCode), first.Title
	}
	return statusErrorCode(resp.StatusCode), strings.TrimSpace(string(body))
}

func normalizeErrorCode(apiCode string, status int) string {
	switch apiCode {
	case "invalid_image_url", "failed_image_download", "file_invalid":
		return "invalid_image"
	case "file_too_large":
		return "image_too_large"
	case "resolution_too_high":
		return "resolution_too_high"
	case "rate_limit_exceeded":
		return "rate_limited"
	case "insufficient_credits":
		return "insufficient_credits"
	default:
		return statusErrorCode(status)
	}
}

func statusErrorCode(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusPaymentRequired:
		return "insufficient_credits"
	case status >= 500:
		return "provider_internal"
	case status >= 400:
		return "rejected"
	default:
		return "unexpected_status"
	}
}
