package pixian

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpix/clearpix-go/internal/domain/model"
)

func newTestAdapter(t *testing.T, testMode bool, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := New(Options{
		APIID:     "test-id",
		APISecret: "test-secret",
		BaseURL:   srv.URL,
		TestMode:  testMode,
	})
	require.NoError(t, err)
	return adapter
}

func TestNew_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(Options{APIID: "id-only"})
	require.Error(t, err)

	_, err = New(Options{APISecret: "secret-only"})
	require.Error(t, err)
}

func TestAdapter_ID(t *testing.T) {
	t.Parallel()

	adapter, err := New(Options{APIID: "id", APISecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderPixian, adapter.ID())
}

func TestAdapter_RemoveBackgroundFromURL_Success(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/remove-background", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "test-id", user)
		assert.Equal(t, "test-secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://example.com/cat.jpg", r.PostFormValue("image.url"))
		assert.Equal(t, "png", r.PostFormValue("output.format"))
		assert.Empty(t, r.PostFormValue("test"))

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Credits-Charged", "0.25")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("png-bytes"))
	})

	result, err := adapter.RemoveBackgroundFromURL(context.Background(),
		"https://example.com/cat.jpg",
		model.OutputOptions{Format: model.OutputFormatPNG})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []byte("png-bytes"), result.ImageBytes)
	assert.Equal(t, "image/png", result.ContentType)
	assert.InDelta(t, 0.25, result.CreditsConsumed, 0.001)
}

func TestAdapter_RemoveBackgroundFromURL_TestModeAndMaxSize(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, true, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "true", r.PostFormValue("test"))
		assert.Equal(t, "800 600", r.PostFormValue("output.max_size"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("png-bytes"))
	})

	_, err := adapter.RemoveBackgroundFromURL(context.Background(),
		"https://example.com/cat.jpg",
		model.OutputOptions{Format: model.OutputFormatPNG, MaxWidth: 800, MaxHeight: 600})
	require.NoError(t, err)
}

func TestAdapter_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{
			name:     "image decode error",
			status:   http.StatusBadRequest,
			body:     `{"error":{"status":400,"code":"image_decode_error","message":"could not decode"}}`,
			wantCode: "invalid_image",
		},
		{
			name:     "too many pixels",
			status:   http.StatusBadRequest,
			body:     `{"error":{"status":400,"code":"max_input_pixels_exceeded","message":"too big"}}`,
			wantCode: "resolution_too_high",
		},
		{
			name:     "unsupported media type",
			status:   http.StatusUnsupportedMediaType,
			body:     `{"error":{"status":415,"message":"unsupported format"}}`,
			wantCode: "unsupported_format",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"status":429,"message":"slow down"}}`,
			wantCode: "rate_limited",
		},
		{
			name:     "out of credits",
			status:   http.StatusPaymentRequired,
			body:     `{"error":{"status":402,"message":"credit pack exhausted"}}`,
			wantCode: "insufficient_credits",
		},
		{
			name:     "server error with plain body",
			status:   http.StatusServiceUnavailable,
			body:     "maintenance",
			wantCode: "provider_internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adapter := newTestAdapter(t, false, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := adapter.RemoveBackgroundFromURL(context.Background(),
				"https://example.com/cat.jpg",
				model.OutputOptions{Format: model.OutputFormatPNG})
			require.NoError(t, err)

			assert.False(t, result.Success)
			assert.Equal(t, tt.wantCode, result.ErrorCode)
			assert.NotEmpty(t, result.ErrorMessage)
		})
	}
}

func TestAdapter_GetAccountInfo(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"creditPack":{"credits":100,"creditsUsed":30},"state":"active"}`))
	})

	info, err := adapter.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 70.0, info.AvailableCredits, 0.001)
	assert.InDelta(t, 30.0, info.UsedCredits, 0.001)
	assert.True(t, info.IsActive)
}

func TestAdapter_GetAccountInfo_Suspended(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, false, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"creditPack":{"credits":0,"creditsUsed":100},"state":"SUSPENDED"}`))
	})

	info, err := adapter.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.False(t, info.IsActive)
}
