package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"k12-tutor/internal/domain"
	"k12-tutor/internal/moderation"
	"k12-tutor/internal/platform/logger"
)

// RedirectResponse replaces the answer when the content filter rejects a message.
const RedirectResponse = "Let's focus on learning topics that are fun and educational! What subject would you like to explore?"

const defaultMaxMessageLen = 2000

// SessionStore keeps the ordered turns of every session.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
	Append(ctx context.Context, sessionID string, turn domain.ConversationTurn) error
	History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
}

type Responder interface {
	Respond(ctx context.Context, question, gradeLevel string, history []domain.ConversationTurn) (string, bool)
}

type ChatService struct {
	store         SessionStore
	moderator     moderation.Classifier
	responder     Responder
	log           *logger.Logger
	maxMessageLen int
	locks         *sessionLocks
	now           func() time.Time
}

type ChatInput struct {
	Message    string
	GradeLevel string
	SessionID  string
}

type ChatOutput struct {
	Response   string
	GradeLevel string
	SessionID  string
	Timestamp  time.Time
	Filtered   bool
}

func NewChatService(store SessionStore, moderator moderation.Classifier, responder Responder, log *logger.Logger, maxMessageLen int) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if moderator == nil {
		return nil, errors.New("usecase: moderator must not be nil")
	}
	if responder == nil {
		return nil, errors.New("usecase: responder must not be nil")
	}
	if log == nil {
		return nil, errors.New("usecase: logger must not be nil")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &ChatService{
		store:         store,
		moderator:     moderator,
		responder:     responder,
		log:           log.With("component", "ChatService"),
		maxMessageLen: maxMessageLen,
		locks:         newSessionLocks(),
		now:           time.Now,
	}, nil
}

// Chat runs one learner turn: validate, filter, load history, generate and
// record. Filtered messages and failed generations are never recorded.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, ReasonEmptyMessage, nil)
	}
	if len(message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, ReasonMessageTooLong, nil)
	}

	verdict, err := s.moderator.Classify(ctx, message)
	if err != nil {
		s.log.Warn("moderation failed, filtering message", "error", err)
		verdict = moderation.Verdict{Allowed: false, Reason: "moderation_error"}
	}
	if !verdict.Allowed {
		s.log.Info("message filtered", "session_id", in.SessionID, "reason", verdict.Reason)
		return ChatOutput{Response: RedirectResponse, Filtered: true}, nil
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}
	gradeTag, _ := domain.ResolveGrade(in.GradeLevel)

	unlock, err := s.locks.lock(ctx, sessionID)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, ReasonSessionBusy, err)
	}
	defer unlock()

	history, err := s.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, ReasonSessionRead, err)
	}

	answer, ok := s.responder.Respond(ctx, message, gradeTag, history)
	now := s.now()
	if ok {
		turn := domain.NewConversationTurn(message, answer, gradeTag, now)
		if err := s.store.Append(ctx, sessionID, turn); err != nil {
			return ChatOutput{}, newError(ErrorInternal, ReasonSessionWrite, err)
		}
	}

	return ChatOutput{
		Response:   answer,
		GradeLevel: gradeTag,
		SessionID:  sessionID,
		Timestamp:  now,
	}, nil
}

// History returns the recorded turns for a session, empty if it is unknown.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	turns, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorInternal, ReasonSessionRead, err)
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	return turns, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
