package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/memstore"
	"github.com/capitalize-ai/support-agent/internal/model"
)

const (
	tenantA = "6f1c1d2e-8a4b-4c3d-9e5f-0a1b2c3d4e5f"
	tenantB = "7a2d2e3f-9b5c-4d4e-8f60-1b2c3d4e5f60"
	thread1 = "0b9e3c7a-1d2e-4f5a-8b6c-7d8e9f0a1b2c"
	thread2 = "1c0f4d8b-2e3f-4a6b-9c7d-8e9f0a1b2c3d"
)

// scriptedLLM answers reformulate and assess prompts from fields and streams
// a fixed answer.
type scriptedLLM struct {
	mu sync.Mutex

	rephrase func(msgs []llm.ChatMessage) string
	score    string
	tokens   []string
	// streamErrs fail stream attempts in order; nil entries succeed.
	streamErrs []error
	// partial emits one token before a failing attempt returns.
	partial bool

	reformulateCalls int
	assessCalls      int
	streamCalls      int
	lastReformulate  []llm.ChatMessage
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		score:  "0.9",
		tokens: []string{"Open ", "Settings ", "and choose Export."},
	}
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return []string{"scripted"} }

func (s *scriptedLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.System {
	case reformulateSystemPrompt:
		s.reformulateCalls++
		s.lastReformulate = req.Messages
		if s.rephrase == nil {
			return &llm.CompletionResponse{Content: req.Messages[len(req.Messages)-1].Content}, nil
		}
		return &llm.CompletionResponse{Content: s.rephrase(req.Messages)}, nil
	case assessSystemPrompt:
		s.assessCalls++
		if s.score == "" {
			return nil, errors.New("assessment model unavailable")
		}
		return &llm.CompletionResponse{Content: s.score}, nil
	}
	return nil, errors.New("unexpected prompt")
}

func (s *scriptedLLM) CompleteStream(_ context.Context, _ *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.streamCalls++
	var failure error
	if len(s.streamErrs) > 0 {
		failure, s.streamErrs = s.streamErrs[0], s.streamErrs[1:]
	}
	tokens := append([]string(nil), s.tokens...)
	partial := s.partial
	s.mu.Unlock()

	if failure != nil {
		if partial {
			_ = cb("Open ", 0)
		}
		return nil, failure
	}

	for i, tok := range tokens {
		if err := cb(tok, i); err != nil {
			return nil, err
		}
	}
	return &llm.CompletionResponse{Content: strings.Join(tokens, ""), Model: "scripted"}, nil
}

// mapEmbedder returns fixed vectors for known texts and falls back to
// bag-of-words hashing.
type mapEmbedder map[string][]float32

func (m mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m[text]; ok {
		return v, nil
	}
	return memstore.HashEmbedder{Dim: 64}.Embed(ctx, text)
}

type countingRetriever struct {
	RetrievalGateway
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingRetriever) Search(ctx context.Context, tenantID, query string, topK int) ([]model.ContextChunk, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.RetrievalGateway.Search(ctx, tenantID, query, topK)
}

type failingCache struct{}

func (failingCache) Lookup(context.Context, string, string) (*model.CacheEntry, error) {
	return nil, model.ErrCacheUnavailable
}

func (failingCache) Write(context.Context, string, string, string, time.Duration) error {
	return model.ErrCacheUnavailable
}

// hookedCheckpoints runs beforeSave once, just before the next save, and
// fails the first save that failSave matches.
type hookedCheckpoints struct {
	*memstore.Checkpoints
	mu         sync.Mutex
	beforeSave func()
	failSave   func(model.AgentState) bool
}

func (h *hookedCheckpoints) Save(ctx context.Context, state model.AgentState, expected int64) (int64, error) {
	h.mu.Lock()
	hook := h.beforeSave
	h.beforeSave = nil
	fail := h.failSave != nil && h.failSave(state)
	if fail {
		h.failSave = nil
	}
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return 0, errors.New("db blip")
	}
	return h.Checkpoints.Save(ctx, state, expected)
}

// flakyTickets fails the next Resolve when failResolve is set.
type flakyTickets struct {
	*memstore.Tickets
	mu          sync.Mutex
	failResolve bool
}

func (f *flakyTickets) Resolve(ctx context.Context, tenantID, threadID string) (*model.Ticket, error) {
	f.mu.Lock()
	fail := f.failResolve
	f.failResolve = false
	f.mu.Unlock()
	if fail {
		return nil, errors.New("registry unavailable")
	}
	return f.Tickets.Resolve(ctx, tenantID, threadID)
}

// flakyHistory fails the next append of a turn from failSender.
type flakyHistory struct {
	*memstore.History
	mu         sync.Mutex
	failSender model.Sender
}

func (f *flakyHistory) Append(ctx context.Context, turn model.Turn) (model.Turn, error) {
	f.mu.Lock()
	fail := f.failSender != "" && f.failSender == turn.Sender
	if fail {
		f.failSender = ""
	}
	f.mu.Unlock()
	if fail {
		return model.Turn{}, errors.New("history unavailable")
	}
	return f.History.Append(ctx, turn)
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Emit(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	engine      *Engine
	checkpoints *hookedCheckpoints
	history     *flakyHistory
	tickets     *flakyTickets
	cache       *memstore.Cache
	retriever   *countingRetriever
	llm         *scriptedLLM
	embedder    mapEmbedder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	emb := mapEmbedder{}
	h := &harness{
		checkpoints: &hookedCheckpoints{Checkpoints: memstore.NewCheckpoints()},
		history:     &flakyHistory{History: memstore.NewHistory()},
		tickets:     &flakyTickets{Tickets: memstore.NewTickets()},
		cache:       memstore.NewCache(emb, 0.9),
		llm:         newScriptedLLM(),
		embedder:    emb,
	}

	kb := memstore.NewRetriever(emb)
	require.NoError(t, kb.Index(context.Background(), tenantA, model.ContextChunk{
		ID: "kb-1", Content: "To export a document choose File, Export, then PDF.", Source: "manual",
	}))
	h.retriever = &countingRetriever{RetrievalGateway: kb}

	h.engine = New(Deps{
		Checkpoints: h.checkpoints,
		History:     h.history,
		Tickets:     h.tickets,
		Cache:       h.cache,
		Retriever:   h.retriever,
		Generator:   h.llm,
	}, Config{RetryInitialInterval: time.Millisecond})

	return h
}

func (h *harness) run(t *testing.T, tenantID, threadID, utterance string) (*RunResult, *recorder, error) {
	t.Helper()
	rec := &recorder{}
	res, err := h.engine.Run(context.Background(), Request{TenantID: tenantID, ThreadID: threadID, Utterance: utterance}, rec)
	return res, rec, err
}

func (h *harness) checkpoint(t *testing.T, tenantID, threadID string) *model.Checkpoint {
	t.Helper()
	cp, err := h.checkpoints.Load(context.Background(), tenantID, threadID)
	require.NoError(t, err)
	return cp
}

func (h *harness) turns(t *testing.T, tenantID, threadID string) []model.Turn {
	t.Helper()
	turns, err := h.history.List(context.Background(), tenantID, threadID, 0)
	require.NoError(t, err)
	return turns
}

func senders(turns []model.Turn) []model.Sender {
	out := make([]model.Sender, len(turns))
	for i, tr := range turns {
		out[i] = tr.Sender
	}
	return out
}
