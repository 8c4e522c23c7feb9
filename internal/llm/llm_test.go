package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(Options{Provider: "mistral", OpenAIKey: "key"})
	assert.Error(t, err)

	_, err = New(Options{Provider: ProviderOpenAI, AnthropicKey: "key"})
	assert.Error(t, err, "only the selected provider's key counts")

	c, err := New(Options{Provider: ProviderOpenAI, OpenAIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = New(Options{Provider: ProviderAnthropic, AnthropicKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())
}

func TestOpenAIBuildRequest_SystemFirst(t *testing.T) {
	c := &OpenAIClient{}
	req := c.buildRequest(&CompletionRequest{
		System:   "grade it",
		Messages: []ChatMessage{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}},
	}, true)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "grade it", req.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[2].Role)
	assert.Equal(t, defaultOpenAIModel, req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.True(t, req.Stream)

	req = c.buildRequest(&CompletionRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "q"}}}, false)
	assert.Len(t, req.Messages, 1)
}

func TestAnthropicBuildParams_System(t *testing.T) {
	c := &AnthropicClient{}
	params, model := c.buildParams(&CompletionRequest{
		System:   "be brief",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})

	assert.Equal(t, defaultAnthropicModel, model)
	require.Len(t, params.System.Value, 1)
	assert.Equal(t, "be brief", params.System.Value[0].Text.Value)
	assert.Len(t, params.Messages.Value, 1)
}

func TestOpenAIEmbedder(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder("key", "text-embedding-3-small", srv.URL+"/v1")
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "reset password")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "text-embedding-3-small", gotModel)
}

func TestOpenAIEmbedder_RequiresKeyOrBase(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "m", "")
	assert.Error(t, err)
}
