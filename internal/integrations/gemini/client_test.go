package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeKeys struct {
	key   string
	err   error
	calls int
}

func (f *fakeKeys) Resolve(_ context.Context) (string, error) {
	f.calls++
	return f.key, f.err
}

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	model    string
	contents []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func newTestClient(t *testing.T, keys *fakeKeys, models *fakeModels, opts ...Option) (*Client, *int) {
	t.Helper()
	c, err := NewClient(keys, opts...)
	require.NoError(t, err)
	inits := 0
	c.newModels = func(_ context.Context, cfg *genai.ClientConfig) (modelsAPI, error) {
		inits++
		require.Equal(t, keys.key, cfg.APIKey)
		require.Equal(t, genai.BackendGeminiAPI, cfg.Backend)
		return models, nil
	}
	return c, &inits
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil)
	require.ErrorContains(t, err, "nil")

	c, err := NewClient(&fakeKeys{key: "k"})
	require.NoError(t, err)
	require.Equal(t, "gemini-1.5-flash", c.Model())

	c, err = NewClient(&fakeKeys{key: "k"}, WithModel("gemini-2.0-flash"))
	require.NoError(t, err)
	require.Equal(t, "gemini-2.0-flash", c.Model())
}

func TestGenerate_SendsPromptAsUserTurn(t *testing.T) {
	models := &fakeModels{resp: textResponse(&genai.Part{Text: "Water is what we drink."})}
	c, _ := newTestClient(t, &fakeKeys{key: "AIza-test"}, models)

	out, err := c.Generate(context.Background(), "Explain water.")
	require.NoError(t, err)
	require.Equal(t, "Water is what we drink.", out)
	require.Equal(t, "gemini-1.5-flash", models.model)
	require.Len(t, models.contents, 1)
	require.Equal(t, string(genai.RoleUser), models.contents[0].Role)
	require.Equal(t, "Explain water.", models.contents[0].Parts[0].Text)
}

func TestGenerate_SkipsThoughtParts(t *testing.T) {
	models := &fakeModels{resp: textResponse(
		&genai.Part{Text: "thinking about it", Thought: true},
		&genai.Part{Text: "Plants "},
		&genai.Part{Text: "need light."},
	)}
	c, _ := newTestClient(t, &fakeKeys{key: "k"}, models)

	out, err := c.Generate(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "Plants need light.", out)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	models := &fakeModels{resp: &genai.GenerateContentResponse{}}
	c, _ := newTestClient(t, &fakeKeys{key: "k"}, models)

	_, err := c.Generate(context.Background(), "q")
	require.ErrorContains(t, err, "no text")
}

func TestGenerate_SDKError(t *testing.T) {
	models := &fakeModels{err: errors.New("Error 400, Message: API key not valid, Status: INVALID_ARGUMENT")}
	c, _ := newTestClient(t, &fakeKeys{key: "k"}, models)

	_, err := c.Generate(context.Background(), "q")
	require.ErrorContains(t, err, "generate content")
	require.NotEmpty(t, Hint(err))
}

func TestGenerate_InitializesOnce(t *testing.T) {
	keys := &fakeKeys{key: "k"}
	models := &fakeModels{resp: textResponse(&genai.Part{Text: "ok"})}
	c, inits := newTestClient(t, keys, models)

	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), "q")
		require.NoError(t, err)
	}
	require.Equal(t, 1, *inits)
	require.Equal(t, 1, keys.calls)
}

func TestGenerate_KeyFailureRetried(t *testing.T) {
	keys := &fakeKeys{err: errors.New("paramstore: no API key configured")}
	models := &fakeModels{resp: textResponse(&genai.Part{Text: "ok"})}
	c, inits := newTestClient(t, keys, models)

	_, err := c.Generate(context.Background(), "q")
	require.ErrorContains(t, err, "resolve api key")
	require.Zero(t, *inits)

	keys.err = nil
	keys.key = "k"
	out, err := c.Generate(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

func TestHint(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), ""},
		{errors.New("400 API_KEY_INVALID"), "invalid"},
		{errors.New("403 PERMISSION_DENIED"), "permission"},
		{errors.New("429 QUOTA_EXCEEDED"), "quota"},
		{errors.New("429 RESOURCE_EXHAUSTED"), "quota"},
		{errors.New("paramstore: no API key configured"), "GEMINI_API_KEY"},
	}
	for _, tc := range cases {
		got := Hint(tc.err)
		if tc.want == "" {
			require.Empty(t, got)
			continue
		}
		require.Contains(t, got, tc.want)
	}
}
