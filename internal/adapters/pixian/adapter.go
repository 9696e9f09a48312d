// Package pixian adapts the pixian.ai HTTP API to the provider contract.
package pixian

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
	defaultBaseURL = "https://api.pixian.ai/api/v2"

	maxErrorBodyBytes = 4 * 1024
)

// Options configures the pixian.ai adapter. Authentication is HTTP basic
// with the API id/secret pair from the pixian dashboard.
type Options struct {
	APIID      string
	APISecret  string
	BaseURL    string // defaults to the hosted API
	TestMode   bool   // free watermarked results, for integration environments
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Adapter implements core.ProviderAdapter against the pixian.ai API.
type Adapter struct {
	apiID     string
	apiSecret string
	baseURL   string
	testMode  bool
	http      *http.Client
	logger    *slog.Logger
}

var _ core.ProviderAdapter = (*Adapter)(nil)

// New constructs a pixian.ai adapter.
func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.APIID) == "" || strings.TrimSpace(opts.APISecret) == "" {
		return nil, errors.New("pixian api id and secret are required")
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
		apiID:     opts.APIID,
		apiSecret: opts.APISecret,
		baseURL:   base,
		testMode:  opts.TestMode,
		http:      hc,
		logger:    logger.With("component", "pixian_adapter"),
	}, nil
}

// ID returns the provider identifier.
func (a *Adapter) ID() model.ProviderID {
	return model.ProviderPixian
}

// IsAvailable probes the account endpoint.
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
	fw, err := mw.CreateFormFile("image", "image")
	if err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := fw.Write(req.ImageBytes); err != nil {
		return nil, fmt.Errorf("write image bytes: %w", err)
	}
	for k, v := range a.outputFields(req.Output) {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
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
	form.Set("image.url", imageURL)
	for k, v := range a.outputFields(opts) {
		form.Set(k, v)
	}

	return a.submit(ctx, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (a *Adapter) submit(ctx context.Context, body io.Reader, contentType string) (*model.RemovalResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/remove-background", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(a.apiID, a.apiSecret)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call pixian: %w", err)
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

	var credits float64
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

// GetAccountInfo fetches the remaining credit balance.
func (a *Adapter) GetAccountInfo(ctx context.Context) (*model.ProviderAccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/account", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(a.apiID, a.apiSecret)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call pixian account: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, msg := decodeErrorBody(resp)
		return nil, fmt.Errorf("pixian account returned status %d: %s", resp.StatusCode, msg)
	}

	var payload struct {
		CreditPack struct {
			Credits     float64 `json:"credits"`
			CreditsUsed float64 `json:"creditsUsed"`
		} `json:"creditPack"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode account response: %w", err)
	}

	return &model.ProviderAccountInfo{
		AvailableCredits: payload.CreditPack.Credits - payload.CreditPack.CreditsUsed,
		UsedCredits:      payload.CreditPack.CreditsUsed,
		IsActive:         !strings.EqualFold(payload.State, "suspended"),
	}, nil
}

func (a *Adapter) outputFields(opts model.OutputOptions) map[string]string {
	fields := make(map[string]string, 4)
	if opts.Format != "" {
		fields["output.format"] = string(opts.Format)
	}
	if opts.MaxWidth > 0 && opts.MaxHeight > 0 {
		fields["output.max_size"] = fmt.Sprintf("%d %d", opts.MaxWidth, opts.MaxHeight)
	}
	if a.testMode {
		fields["test"] = "true"
	}
	return fields
}

// decodeErrorBody extracts a stable error code and message from a non-200
// response. pixian returns a JSON error object with a numeric status and text.
func decodeErrorBody(resp *http.Response) (code, msg string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var payload struct {
		Error struct {
			Status  int    `json:"status"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		if payload.Error.Code != "" {
			return normalizeErrorCode(payload.Error.Code, resp.StatusCode), payload.Error.Message
		}
		return statusErrorCode(resp.StatusCode), payload.Error.Message
	}
	return statusErrorCode(resp.StatusCode), strings.TrimSpace(string(body))
}

func normalizeErrorCode(apiCode string, status int) string {
	switch apiCode {
	case "image_decode_error", "image_download_error":
		return "invalid_image"
	case "image_too_large", "max_input_pixels_exceeded":
		return "resolution_too_high"
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
	case status == http.StatusUnsupportedMediaType:
		return "unsupported_format"
	case status >= 500:
		return "provider_internal"
	case status >= 400:
		return "rejected"
	default:
		return "unexpected_status"
	}
}
