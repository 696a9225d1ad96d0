package therapy

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
)

// CreateSession stores a new empty session
func (uc *UseCase) CreateSession(ctx context.Context) (*model.Session, error) {
	session := model.NewSession()
	if err := uc.repo.PutSession(ctx, session); err != nil {
		return nil, goerr.Wrap(err, "failed to create session")
	}

	logging.From(ctx).Info("session created", "session_id", session.ID)
	return session, nil
}

// HandleTurn answers one user message. An empty sessionID starts a new
// session. The exchange is handed to the memory pipeline in the background
// after the reply is stored, so storage failures never affect the result.
func (uc *UseCase) HandleTurn(ctx context.Context, sessionID model.SessionID, text string) (*model.ChatResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("message is empty", goerr.T(model.ErrTagValidation))
	}
	if sessionID == "" {
		sessionID = model.NewSessionID()
	}

	logger := logging.From(ctx).With("session_id", sessionID)
	ctx = logging.With(ctx, logger)

	userMsg := model.NewMessage(sessionID, model.RoleUser, text)
	if err := uc.repo.PutMessage(ctx, userMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to store user message", goerr.V("session_id", sessionID))
	}

	history, err := uc.repo.ListRecentMessages(ctx, sessionID, uc.cfg.HistorySize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history", goerr.V("session_id", sessionID))
	}

	snippets := uc.retriever.Retrieve(ctx, text, sessionID, uc.cfg.MemoryLimit)

	req := &model.Completion{
		System:      buildSystemPrompt(model.Snippets(snippets)),
		Messages:    make([]model.CompletionMessage, 0, len(history)),
		MaxTokens:   uc.cfg.MaxTokens,
		Temperature: uc.cfg.Temperature,
	}
	for _, msg := range history {
		req.Messages = append(req.Messages, model.CompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	reply, err := uc.llm.Complete(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate reply", goerr.V("session_id", sessionID))
	}

	aiMsg := model.NewMessage(sessionID, model.RoleAssistant, reply)
	if err := uc.repo.PutMessage(ctx, aiMsg); err != nil {
		return nil, goerr.Wrap(err, "failed to store assistant message", goerr.V("session_id", sessionID))
	}

	logger.Info("turn handled",
		"history", len(history),
		"memories", len(snippets),
		"reply_length", len(reply))

	// Conversation memories are owned by the session itself
	ex := model.Exchange{SessionID: sessionID, UserID: string(sessionID), UserMessage: text, AIResponse: reply}
	uc.pool.Submit(ctx, "retain_exchange", func(ctx context.Context) error {
		return uc.retain(ctx, ex)
	})

	return &model.ChatResult{
		Response:  reply,
		SessionID: sessionID,
		MessageID: aiMsg.ID,
	}, nil
}

func (uc *UseCase) retain(ctx context.Context, ex model.Exchange) error {
	verdict := uc.evaluator.Evaluate(ctx, ex)
	if !verdict.Store() {
		logging.From(ctx).Info("exchange skipped", "score", verdict.Score, "reason", verdict.Reason)
		return nil
	}

	record, err := uc.recorder.Record(ctx, ex)
	if err != nil {
		return goerr.Wrap(err, "failed to store memory")
	}

	logging.From(ctx).Info("memory stored",
		"memory_id", record.ID,
		"score", verdict.Score,
		"length", record.ConversationLength,
		"topics", record.Topics)
	return nil
}

// Wait blocks until background memory jobs submitted so far are done
func (uc *UseCase) Wait() {
	uc.pool.Wait()
}
