package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProviderDeterministic(t *testing.T) {
	p := NewStaticProvider("static", 8)

	a, err := p.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must embed identically")
	require.Len(t, a[0], 8)

	other, err := p.Embed(context.Background(), []string{"different text"})
	require.NoError(t, err)
	assert.NotEqual(t, a[0], other[0])
}

func TestStaticProviderUnitLength(t *testing.T) {
	p := NewStaticProvider("static", 16)
	vecs, err := p.Embed(context.Background(), []string{"normalize me"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 0.001)
}

func TestRegistryResolve(t *testing.T) {
	def := NewStaticProvider("static-a", 4)
	r := NewRegistry(def)
	r.Register(NewStaticProvider("static-b", 4))

	p, err := r.Resolve("default")
	require.NoError(t, err)
	assert.Equal(t, "static-a", p.Name())

	p, err = r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "static-a", p.Name())

	p, err = r.Resolve("static-b")
	require.NoError(t, err)
	assert.Equal(t, "static-b", p.Name())

	_, err = r.Resolve("missing")
	require.Error(t, err)
}

func TestRegistryWithoutDefault(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve("default")
	require.Error(t, err)
	assert.Nil(t, r.Default())
}

func TestOpenAIProviderEmbed(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer out of order; the client must reassemble by index.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:   srv.URL,
		APIKey:    "sk-test",
		Model:     "text-embedding-3-small",
		Dimension: 2,
	})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{0, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[2])
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "m", Dimension: 2})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIProviderBatching(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.LessOrEqual(t, len(req.Input), 2)

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float32{1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "m", Dimension: 1, MaxBatchSize: 2})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, 3, calls)
}

func TestOpenAIProviderEmptyInput(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://unused", Model: "m", Dimension: 1})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
