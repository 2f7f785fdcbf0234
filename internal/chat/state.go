// ABOUTME: Conversation state machine over the durable state store
// ABOUTME: Claims Processing for a turn, applying the staleness recovery rule

package chat

import (
	"context"

	"github.com/pathwise/chat-gateway/internal/store"
)

// beginProcessing advances the conversation's durable state to Processing,
// claiming the turn. An absent row behaves as Idle. A fresh Processing row
// rejects the turn with PROCESSING_IN_PROGRESS. A Processing row older than
// the staleness timeout is presumed abandoned: it transitions through Error
// (recovery, not a failure report) and the claim proceeds.
func (s *Service) beginProcessing(ctx context.Context, conversationID string) error {
	st, err := s.store.GetConversationState(ctx, conversationID)
	if err != nil && err != store.ErrNotFound {
		return WrapError(CodeProcessingFailed, "reading conversation state", err)
	}

	if err == nil && st.State == store.StateProcessing {
		age := s.now().Sub(st.LastOperation)
		if age < s.opts.ProcessingStaleness {
			return NewError(CodeProcessingInProgress, "another turn is already processing")
		}

		s.logger.Warn("reclaiming stale processing state",
			"conversation_id", conversationID,
			"age", age)
		if err := s.store.SetConversationState(ctx, conversationID, store.StateError, nil); err != nil {
			return WrapError(CodeProcessingFailed, "recovering stale conversation state", err)
		}
	}

	if err := s.store.SetConversationState(ctx, conversationID, store.StateProcessing, nil); err != nil {
		return WrapError(CodeProcessingFailed, "claiming conversation state", err)
	}
	return nil
}

// recordRun re-stamps the Processing state with the newly created run id.
func (s *Service) recordRun(ctx context.Context, conversationID, runID string) error {
	if err := s.store.SetConversationState(ctx, conversationID, store.StateProcessing, &runID); err != nil {
		return WrapError(CodeProcessingFailed, "recording run id", err)
	}
	return nil
}
