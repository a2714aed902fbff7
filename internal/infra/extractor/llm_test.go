package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"contract_alert_engine/internal/domain/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textResponse(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	}))
}

func TestExtractDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.NotEmpty(t, r.Header.Get("Anthropic-Version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Contract type: lease")
		assert.Contains(t, req.Messages[0].Content, "The lease ends on 2026-12-31.")

		textResponse(t, w, "```json\n[{\"dateType\":\"end_date\",\"date\":\"2026-12-31\",\"description\":\"Lease ends\",\"clause\":\"The lease ends on 2026-12-31.\",\"confidence\":\"high\"}]\n```")
	}))
	defer srv.Close()

	ex := NewLLMExtractor(Config{APIKey: "test-key", BaseURL: srv.URL})
	got, err := ex.ExtractDates(context.Background(), "The lease ends on 2026-12-31.", "lease")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "end_date", got[0].DateType)
	assert.Equal(t, "2026-12-31", got[0].Date)
	assert.Equal(t, contract.ConfidenceHigh, got[0].Confidence)
}

func TestExtractDatesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		textResponse(t, w, "[]")
	}))
	defer srv.Close()

	ex := NewLLMExtractor(Config{APIKey: "k", BaseURL: srv.URL, BaseBackoff: time.Millisecond})
	got, err := ex.ExtractDates(context.Background(), "text", "nda")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExtractDatesDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer srv.Close()

	ex := NewLLMExtractor(Config{APIKey: "k", BaseURL: srv.URL, BaseBackoff: time.Millisecond})
	_, err := ex.ExtractDates(context.Background(), "text", "nda")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractDatesGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ex := NewLLMExtractor(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2, BaseBackoff: time.Millisecond})
	_, err := ex.ExtractDates(context.Background(), "text", "nda")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestParseCandidates(t *testing.T) {
	got, err := ParseCandidates(`Here are the dates: [{"dateType":"payment_due","date":"2026-03-01","confidence":"medium"}] Thanks.`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "payment_due", got[0].DateType)

	_, err = ParseCandidates("no dates found")
	assert.Error(t, err)

	_, err = ParseCandidates("[{not json}]")
	assert.Error(t, err)
}

func TestNewWithoutKeyIsDisabled(t *testing.T) {
	ex := New(Config{})
	_, err := ex.ExtractDates(context.Background(), "text", "nda")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestExtractDatesTruncatesOnRuneBoundary(t *testing.T) {
	// The leading byte puts every two-byte rune off an even offset.
	long := "a" + strings.Repeat("é", maxContractChars)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)

		_, text, found := strings.Cut(req.Messages[0].Content, "Contract text:\n")
		require.True(t, found)
		assert.True(t, utf8.ValidString(text))
		assert.NotContains(t, text, string(utf8.RuneError))
		assert.Equal(t, maxContractChars, utf8.RuneCountInString(text))

		textResponse(t, w, "[]")
	}))
	defer srv.Close()

	ex := NewLLMExtractor(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := ex.ExtractDates(context.Background(), long, "lease")
	require.NoError(t, err)
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"héllo wörld", 4, "héll"},
		{"日本語テキスト", 3, "日本語"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateRunes(tt.in, tt.max), tt.in)
	}
}
