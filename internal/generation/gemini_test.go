package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

type GeminiSuite struct {
	suite.Suite
}

func TestGeminiSuite(t *testing.T) {
	suite.Run(t, new(GeminiSuite))
}

func (s *GeminiSuite) newBackend(baseURL string) *Gemini {
	g, err := NewGemini(GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	})
	s.Require().NoError(err)
	return g
}

func (s *GeminiSuite) TestNewGemini_RequiresAPIKey() {
	_, err := NewGemini(GeminiConfig{})
	s.Error(err)
}

func (s *GeminiSuite) TestGenerate_ReturnsCandidateText() {
	var gotPath string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"items\":[]}"}]}}]}`))
	}))
	defer srv.Close()

	g := s.newBackend(srv.URL)
	out, err := g.Generate(context.Background(), "classify these", Schema{Type: "object"})

	s.Require().NoError(err)
	s.Equal(`{"items":[]}`, out)
	s.Equal("/models/gemini-test:generateContent", gotPath)
	s.Require().Len(gotBody.Contents, 1)
	s.Equal("classify these", gotBody.Contents[0].Parts[0].Text)
	s.Equal("application/json", gotBody.GenerationConfig.ResponseMimeType)
}

func (s *GeminiSuite) TestGenerate_ServerErrorIsTransient() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := s.newBackend(srv.URL)
	_, err := g.Generate(context.Background(), "p", Schema{})

	s.Require().Error(err)
	s.True(IsTransient(err))
}

func (s *GeminiSuite) TestGenerate_RateLimitIsTransient() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := s.newBackend(srv.URL)
	_, err := g.Generate(context.Background(), "p", Schema{})

	s.Require().Error(err)
	s.True(IsTransient(err))
}

func (s *GeminiSuite) TestGenerate_ClientErrorIsPermanent() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	g := s.newBackend(srv.URL)
	_, err := g.Generate(context.Background(), "p", Schema{})

	s.Require().Error(err)
	s.False(IsTransient(err))
}

func (s *GeminiSuite) TestGenerate_NoCandidates() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	g := s.newBackend(srv.URL)
	_, err := g.Generate(context.Background(), "p", Schema{})

	s.Require().Error(err)
	s.Contains(err.Error(), "no response candidates")
}

func (s *GeminiSuite) TestGenerate_ContextCancelled() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	g := s.newBackend(srv.URL)
	_, err := g.Generate(ctx, "p", Schema{})

	s.Require().Error(err)
	s.True(IsTransient(err))
}
