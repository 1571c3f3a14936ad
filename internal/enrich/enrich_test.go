package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/model"
	"github.com/sykell/product-scraper/internal/quality"
	"github.com/sykell/product-scraper/internal/retry"
)

type stubClient struct {
	reply  string
	err    error
	prompt string
}

func (s *stubClient) Recommend(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func testClient(url string) *HTTPClient {
	c := NewHTTPClient(Config{BaseURL: url, Timeout: time.Second}, zap.NewNop())
	c.retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	return c
}

func TestEnrich_FillsOnlyNullFields(t *testing.T) {
	client := &stubClient{reply: `{
		"productName": "Model Name",
		"productCode": "CC-01",
		"category": "CREDIT_CARD",
		"description": "A card",
		"islamicStructure": "Tawarruq",
		"keyBenefits": ["Cashback", " "],
		"confidence": 0.85
	}`}
	e := New(client, zap.NewNop())

	rec := model.ExtractedRecord{
		SourceURL:   "https://bank.example/cards/1",
		ProductName: model.Ptr("Page Name"),
		RawHTML:     strings.Repeat("x", 3000),
	}
	out := e.Enrich(context.Background(), rec)

	assert.Equal(t, "Page Name", *out.ProductName)
	assert.Equal(t, "CC-01", *out.ProductCode)
	assert.Equal(t, "CREDIT_CARD", *out.Category)
	assert.Equal(t, "A card", *out.Description)
	assert.Equal(t, "Tawarruq", *out.IslamicStructure)
	assert.Equal(t, []string{"Cashback"}, out.KeyBenefits)
	assert.Equal(t, "CREDIT_CARD", *out.AISuggestedCategory)
	assert.InDelta(t, 0.85, *out.AIConfidence, 1e-9)
	assert.Equal(t, "CC-01", out.AICategorizationJSON["productCode"])
	assert.Equal(t, quality.Score(out), out.DataQualityScore)

	// the input record is left alone
	assert.Nil(t, rec.Category)
	assert.Nil(t, rec.AICategorizationJSON)

	assert.Contains(t, client.prompt, "Product URL: https://bank.example/cards/1")
	assert.Contains(t, client.prompt, strings.Repeat("x", MaxContentChars))
	assert.NotContains(t, client.prompt, strings.Repeat("x", MaxContentChars+1))
}

func TestEnrich_FailuresKeepRecord(t *testing.T) {
	rec := model.ExtractedRecord{
		SourceURL:   "https://bank.example/cards/1",
		ProductName: model.Ptr("Gold"),
		RawHTML:     "<html/>",
	}

	cases := map[string]*stubClient{
		"client error": {err: errors.New("connection refused")},
		"not json":     {reply: "I cannot help with that"},
		"array":        {reply: `["a"]`},
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			out := New(client, nil).Enrich(context.Background(), rec)
			assert.Equal(t, "Gold", *out.ProductName)
			assert.Nil(t, out.Category)
			assert.Nil(t, out.AICategorizationJSON)
			assert.Equal(t, quality.Score(rec), out.DataQualityScore)
		})
	}
}

func TestEnrich_NoRawContentSkipsCall(t *testing.T) {
	client := &stubClient{reply: `{"category":"X"}`}
	out := New(client, nil).Enrich(context.Background(), model.ExtractedRecord{ProductName: model.Ptr("Gold")})
	assert.Empty(t, client.prompt)
	assert.Nil(t, out.Category)
}

func TestParseReply(t *testing.T) {
	doc, err := ParseReply("```json\n{\"category\":\"SAVINGS\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "SAVINGS", doc["category"])

	doc, err = ParseReply(`{"response":"` + "```json\\n{\\\"productName\\\":\\\"Wrapped\\\"}\\n```" + `"}`)
	require.NoError(t, err)
	assert.Equal(t, "Wrapped", doc["productName"])

	doc, err = ParseReply(`{"content":"{\"category\":\"FINANCING\"}"}`)
	require.NoError(t, err)
	assert.Equal(t, "FINANCING", doc["category"])

	// a plain string answer stays the outer object
	doc, err = ParseReply(`{"response":"no idea","category":"X"}`)
	require.NoError(t, err)
	assert.Equal(t, "X", doc["category"])

	_, err = ParseReply("   ")
	assert.Error(t, err)
}

func TestApply_ConfidenceOutOfRange(t *testing.T) {
	var rec model.ExtractedRecord
	filled := Apply(&rec, map[string]any{"confidence": "1.7", "product_name": "Snake"})
	assert.Nil(t, rec.AIConfidence)
	assert.Equal(t, "Snake", *rec.ProductName)
	assert.Equal(t, []string{"product_name"}, filled)
}

func TestHTTPClient_Recommend(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/recommendations", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req recommendationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "prompt text", req.UserQuery)
		assert.NotNil(t, req.UserContext)

		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL+"/").Recommend(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, `{"response":"ok"}`, reply)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Recommend(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewConfig(t *testing.T) {
	t.Setenv("LLM_SERVICE_URL", "http://llm.internal:9000/")
	t.Setenv("LLM_TIMEOUT", "5s")
	cfg := NewConfig()
	assert.Equal(t, "http://llm.internal:9000", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
