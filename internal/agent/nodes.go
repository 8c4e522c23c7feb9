package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/metrics"
)

func (e *Engine) cacheCheck(ctx context.Context, r *run) (outcome, error) {
	entry, err := e.deps.Cache.Lookup(ctx, r.state.TenantID, r.state.Utterance)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return outcomeFallback, err
	}
	if entry == nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return outcomeMiss, nil
	}

	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	r.state.CacheHit = true
	r.state.DraftAnswer = entry.Answer
	r.log.Debug("cache hit", zap.Float64("similarity", entry.Similarity))
	return outcomeHit, nil
}

func (e *Engine) reformulate(ctx context.Context, r *run) (outcome, error) {
	r.state.RephrasedQuestion = r.state.Utterance

	prior := priorMessages(r.state.Messages, e.cfg.MaxChatHistory)
	if len(prior) == 0 {
		return outcomeOK, nil
	}

	msgs := append(chatMessages(prior), llm.ChatMessage{Role: llm.RoleUser, Content: r.state.Utterance})
	resp, err := e.deps.Utility.Complete(ctx, &llm.CompletionRequest{
		Model:     e.cfg.UtilityModel,
		System:    reformulateSystemPrompt,
		Messages:  msgs,
		MaxTokens: 256,
	})
	if err != nil {
		return outcomeFallback, fmt.Errorf("reformulate: %w", err)
	}

	question := strings.TrimSpace(resp.Content)
	if question == "" {
		return outcomeFallback, errors.New("reformulate: empty question")
	}
	r.state.RephrasedQuestion = question
	return outcomeOK, nil
}

func (e *Engine) retrieve(ctx context.Context, r *run) (outcome, error) {
	chunks, err := e.deps.Retriever.Search(ctx, r.state.TenantID, r.question(), e.cfg.TopK)
	if err != nil {
		r.state.RetrievedContext = nil
		return outcomeFallback, err
	}
	r.state.RetrievedContext = chunks
	return outcomeOK, nil
}

func (e *Engine) generate(ctx context.Context, r *run) (outcome, error) {
	prior := priorMessages(r.state.Messages, e.cfg.MaxChatHistory)
	req := &llm.CompletionRequest{
		Model:       e.cfg.GenerationModel,
		System:      fmt.Sprintf(generateSystemPrompt, formatContext(r.state.RetrievedContext)),
		Messages:    append(chatMessages(prior), llm.ChatMessage{Role: llm.RoleUser, Content: r.question()}),
		MaxTokens:   1024,
		Temperature: 0.2,
		Stream:      true,
	}

	var resp *llm.CompletionResponse
	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		out, err := e.deps.Generator.CompleteStream(ctx, req, func(token string, _ int) error {
			r.streamed = true
			r.out.Emit(model.TokenEvent(token))
			return nil
		})
		if err == nil && strings.TrimSpace(out.Content) == "" {
			err = errors.New("empty answer")
		}
		if err != nil {
			metrics.RecordLLMStream(req.Model, "error", time.Since(start).Seconds(), 0, 0)
			r.log.Warn("generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			// The client already holds part of this answer.
			if r.streamed {
				return backoff.Permanent(err)
			}
			return err
		}
		metrics.RecordLLMStream(out.Model, "success", time.Since(start).Seconds(), out.TokensIn, out.TokensOut)
		resp = out
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.cfg.GenerationMaxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return outcomeError, fmt.Errorf("%w after %d attempts: %v", model.ErrGenerationFailure, attempt, err)
	}

	r.state.DraftAnswer = resp.Content
	return outcomeOK, nil
}

func (e *Engine) assess(ctx context.Context, r *run) (outcome, error) {
	resp, err := e.deps.Utility.Complete(ctx, &llm.CompletionRequest{
		Model:     e.cfg.UtilityModel,
		System:    assessSystemPrompt,
		Messages:  []llm.ChatMessage{{Role: llm.RoleUser, Content: formatAssessment(r.question(), r.state.DraftAnswer, r.state.RetrievedContext)}},
		MaxTokens: 8,
	})
	if err != nil {
		return outcomeFallback, fmt.Errorf("assess: %w", err)
	}

	score, err := parseScore(resp.Content)
	if err != nil {
		return outcomeFallback, fmt.Errorf("assess: %w", err)
	}

	r.state.ConfidenceScore = &score
	metrics.ConfidenceScore.Observe(score)
	return route(score), nil
}

func (e *Engine) cacheUpdate(ctx context.Context, r *run) (outcome, error) {
	if err := e.deps.Cache.Write(ctx, r.state.TenantID, r.state.Utterance, r.state.DraftAnswer, e.cfg.CacheTTL); err != nil {
		return outcomeFallback, err
	}
	return outcomeOK, nil
}

// escalate hands the thread to a human. An already pending_human ticket is
// left as is and the bridge message is not recorded again.
func (e *Engine) escalate(ctx context.Context, r *run) (outcome, error) {
	prior, err := e.deps.Tickets.Current(ctx, r.state.TenantID, r.state.ThreadID)
	if err != nil {
		return outcomeError, fmt.Errorf("escalate: %w", err)
	}
	alreadyPending := prior != nil && prior.Status == model.TicketPendingHuman

	ticket, err := e.deps.Tickets.Escalate(ctx, r.state.TenantID, r.state.ThreadID)
	if err != nil {
		return outcomeError, fmt.Errorf("escalate: %w", err)
	}

	if !alreadyPending {
		r.state.Messages = r.state.Messages.Append(model.Message{
			ID:        e.newID(),
			Sender:    model.SenderSystem,
			Content:   BridgeMessage,
			CreatedAt: e.now(),
		})
		metrics.EscalationsTotal.WithLabelValues(r.state.TenantID).Inc()
	}
	r.notify(model.EscalationEvent(BridgeMessage))

	r.log.Info("escalated to human", zap.String("ticket_id", ticket.ID), zap.Bool("already_pending", alreadyPending))
	return outcomeOK, nil
}

// question is the standalone question when one was produced.
func (r *run) question() string {
	if r.state.RephrasedQuestion != "" {
		return r.state.RephrasedQuestion
	}
	return r.state.Utterance
}

// priorMessages returns up to limit user and agent messages before the
// latest message of the log.
func priorMessages(log model.MessageLog, limit int) []model.Message {
	if log.Len() <= 1 {
		return nil
	}

	var out []model.Message
	for i := log.Len() - 2; i >= 0 && len(out) < limit; i-- {
		m := log.At(i)
		if m.Sender == model.SenderSystem {
			continue
		}
		out = append(out, m)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func chatMessages(msgs []model.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Sender == model.SenderAgent {
			role = llm.RoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}

var scorePattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// parseScore extracts the first number of s and requires it to lie in [0, 1].
func parseScore(s string) (float64, error) {
	match := scorePattern.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("no score in %q", s)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("bad score %q: %w", match, err)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("score %v out of range", score)
	}
	return score, nil
}
