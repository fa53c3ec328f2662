package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/llm"
	"github.com/and161185/typegpt/internal/metrics"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/repository"
	"github.com/and161185/typegpt/internal/threadlock"
)

// Terminal error reasons shown to the caller.
const (
	ReasonGenerate = "Failed to generate response"
	ReasonBilling  = "Billing account required"
	ReasonSave     = "Failed to save response"
)

// EventSink receives relay events in order. A Send error means the caller is gone.
type EventSink interface {
	Send(ev model.StreamEvent) error
}

// Relay drives one message through the provider and back to the caller.
//
// The user message is stored before the provider is called. Fragments are
// forwarded as they arrive and accumulated; only a stream that ends normally
// is stored as an assistant message, followed by {done}. Provider failures end
// with {error} and store nothing. A vanished caller ends the relay silently
// and stores nothing. Sends to the same thread are serialized.
type Relay struct {
	threads  repository.ThreadRepository
	messages repository.MessageRepository
	provider llm.ChatProvider
	locks    threadlock.Locker
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewRelay constructs a Relay.
func NewRelay(threads repository.ThreadRepository, messages repository.MessageRepository, provider llm.ChatProvider,
	locks threadlock.Locker, m *metrics.Metrics, log *zap.Logger) *Relay {
	return &Relay{threads: threads, messages: messages, provider: provider, locks: locks, metrics: m, log: log}
}

// Send relays one user message. Errors returned before the first event
// (validation, ownership, user message persistence) leave sink untouched.
// After that, outcomes are reported through sink and Send returns nil,
// except when the caller went away, which returns the cause.
func (r *Relay) Send(ctx context.Context, p model.Principal, threadID uuid.UUID, content string, sink EventSink) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content required", errs.ErrInvalidInput)
	}
	if _, err := r.threads.Get(ctx, p.ID, threadID); err != nil {
		return err
	}

	release, err := r.locks.Lock(ctx, threadID.String())
	if err != nil {
		return fmt.Errorf("lock thread: %w", err)
	}
	defer release()

	// the thread may have been deleted while waiting for the lock
	if _, err := r.threads.Get(ctx, p.ID, threadID); err != nil {
		return err
	}
	userMsg, err := r.messages.Append(ctx, threadID, model.RoleUser, content)
	if errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: save user message: %v", errs.ErrPersistence, err)
	}
	r.assignTitle(ctx, threadID, content)

	prior, err := r.messages.ListBefore(ctx, threadID, userMsg.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	history := Transcript(prior)

	log := r.log.With(zap.String("thread", threadID.String()), zap.String("user", p.ID))
	log.Info("relay started", zap.Int("history", len(history)))
	finish := r.metrics.StreamStarted()

	var acc strings.Builder
	for frag, err := range r.provider.Stream(ctx, history, content) {
		if err != nil {
			if ctx.Err() != nil {
				finish(metrics.OutcomeAborted)
				log.Info("relay aborted by caller during provider call")
				return ctx.Err()
			}
			finish(metrics.OutcomeProviderError)
			log.Warn("provider stream failed", zap.Int("fragments_bytes", acc.Len()), zap.Error(err))
			reason := ReasonGenerate
			if errors.Is(err, errs.ErrBillingRequired) {
				reason = ReasonBilling
			}
			_ = sink.Send(model.StreamEvent{Error: reason})
			return nil
		}
		if frag == "" {
			continue
		}
		acc.WriteString(frag)
		if err := sink.Send(model.StreamEvent{Content: frag}); err != nil {
			finish(metrics.OutcomeAborted)
			log.Info("relay aborted: caller gone", zap.Error(err))
			return fmt.Errorf("relay aborted: %w", err)
		}
		r.metrics.Fragment()
	}
	if err := ctx.Err(); err != nil {
		finish(metrics.OutcomeAborted)
		log.Info("relay aborted by caller")
		return err
	}
	if strings.TrimSpace(acc.String()) == "" {
		finish(metrics.OutcomeProviderError)
		log.Warn("provider returned an empty completion")
		_ = sink.Send(model.StreamEvent{Error: ReasonGenerate})
		return nil
	}

	// The caller has seen the whole answer; storing it must not depend on the connection.
	pctx := context.WithoutCancel(ctx)
	if _, err := r.messages.Append(pctx, threadID, model.RoleAssistant, acc.String()); err != nil {
		finish(metrics.OutcomePersistError)
		log.Error("assistant message not saved after full stream", zap.Error(err))
		_ = sink.Send(model.StreamEvent{Error: ReasonSave})
		return nil
	}
	if err := r.threads.Touch(pctx, threadID); err != nil {
		log.Warn("thread touch failed", zap.Error(err))
	}

	finish(metrics.OutcomeCompleted)
	if err := sink.Send(model.StreamEvent{Done: true}); err != nil {
		log.Info("done event not delivered", zap.Error(err))
	}
	return nil
}

// assignTitle names the thread after its first message. The count check is
// only reliable because sends to a thread are serialized.
func (r *Relay) assignTitle(ctx context.Context, threadID uuid.UUID, content string) {
	n, err := r.messages.Count(ctx, threadID)
	if err != nil {
		r.log.Warn("message count failed", zap.String("thread", threadID.String()), zap.Error(err))
		return
	}
	if n != 1 {
		return
	}
	if err := r.threads.SetTitle(ctx, threadID, TitleFrom(content)); err != nil {
		r.log.Warn("title not set", zap.String("thread", threadID.String()), zap.Error(err))
	}
}
