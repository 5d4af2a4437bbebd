package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"code-review-be/internal/constant"
	"code-review-be/internal/dto"
	"code-review-be/internal/entity"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/pkg/metrics"
	"code-review-be/internal/repository/specification"
	"code-review-be/internal/repository/unitofwork"
	"code-review-be/pkg/codedetect"
	"code-review-be/pkg/events"
	"code-review-be/pkg/llm"
	"code-review-be/pkg/rag"

	"github.com/google/uuid"
)

const (
	reviewSourceText = "text"
	reviewSourceFile = "file"
)

var errConversationNotFound = apperror.NotFound(apperror.CodeConversationNotFound, "conversation not found")

// SimilarityGateway is the part of rag.Gateway the review pipeline needs.
type SimilarityGateway interface {
	Store(ctx context.Context, id, text string) error
	Query(ctx context.Context, text string, k int) ([]rag.Match, error)
}

type IReviewService interface {
	ReviewText(ctx context.Context, userID *string, req *dto.ReviewTextRequest) (*dto.ReviewResponse, error)
	ReviewFile(ctx context.Context, userID *string, req *dto.ReviewFileRequest) (*dto.FileReviewResponse, error)
}

type reviewService struct {
	uowFactory unitofwork.RepositoryFactory
	gateway    SimilarityGateway
	completer  llm.LLMProvider
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewReviewService(
	uowFactory unitofwork.RepositoryFactory,
	gateway SimilarityGateway,
	completer llm.LLMProvider,
	publisher events.Publisher,
	log logger.ILogger,
) IReviewService {
	return &reviewService{
		uowFactory: uowFactory,
		gateway:    gateway,
		completer:  completer,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *reviewService) ReviewText(ctx context.Context, userID *string, req *dto.ReviewTextRequest) (*dto.ReviewResponse, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperror.BadRequest(apperror.CodeEmptyCode, "code cannot be empty")
	}

	conv, err := s.resolveConversation(ctx, userID, req.ConversationId)
	if err != nil {
		return nil, err
	}

	return s.review(ctx, reviewSourceText, userID, conv, req.Code, nil)
}

func (s *reviewService) ReviewFile(ctx context.Context, userID *string, req *dto.ReviewFileRequest) (*dto.FileReviewResponse, error) {
	if !codedetect.SupportedExtension(req.Filename) {
		return nil, apperror.BadRequest(apperror.CodeUnsupportedFileType, "unsupported file type")
	}
	if !utf8.Valid(req.Content) {
		return nil, apperror.BadRequest(apperror.CodeInvalidEncoding, "file must be UTF-8 encoded")
	}

	code := string(req.Content)
	if strings.TrimSpace(code) == "" {
		return nil, apperror.BadRequest(apperror.CodeEmptyCode, "code cannot be empty")
	}

	var detected *string
	if lang := codedetect.DetectLanguage(req.Filename, req.Content); lang != "" {
		if !codedetect.IsSupportedLanguage(lang) {
			return nil, apperror.BadRequest(apperror.CodeUnsupportedLanguage, fmt.Sprintf("unsupported language detected: %s", lang))
		}
		detected = &lang
	}
	frameworks := codedetect.DetectFrameworks(code)

	conv, err := s.resolveConversation(ctx, userID, req.ConversationId)
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{
		"filename":            req.Filename,
		"detected_frameworks": frameworks,
	}
	if detected != nil {
		meta["detected_language"] = *detected
	}

	res, err := s.review(ctx, reviewSourceFile, userID, conv, code, meta)
	if err != nil {
		return nil, err
	}

	return &dto.FileReviewResponse{
		ReviewResponse:     *res,
		Filename:           req.Filename,
		DetectedLanguage:   detected,
		DetectedFrameworks: frameworks,
	}, nil
}

// resolveConversation returns nil when no id was given or the lookup itself
// failed; a fresh conversation is then created on persist. A conversation
// owned by someone else is reported as not found.
func (s *reviewService) resolveConversation(ctx context.Context, userID *string, rawID string) (*entity.Conversation, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return nil, nil
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, errConversationNotFound
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conv, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		s.logger.Error("REVIEW", "Conversation lookup failed", map[string]interface{}{
			"conversation_id": rawID,
			"error":           err.Error(),
		})
		return nil, nil
	}
	if conv == nil {
		return nil, errConversationNotFound
	}
	if conv.UserId != nil && (userID == nil || *conv.UserId != *userID) {
		return nil, errConversationNotFound
	}
	return conv, nil
}

func (s *reviewService) review(
	ctx context.Context,
	source string,
	userID *string,
	conv *entity.Conversation,
	code string,
	meta map[string]interface{},
) (*dto.ReviewResponse, error) {
	start := time.Now()
	codeID := uuid.NewString()

	conv, userMsg := s.persistSubmission(ctx, userID, conv, code, meta)

	stored := true
	if err := s.gateway.Store(ctx, codeID, code); err != nil {
		stored = false
		s.logger.Warn("REVIEW", "Failed to store code embedding", map[string]interface{}{
			"code_id": codeID,
			"error":   err.Error(),
		})
	}
	if stored && userMsg != nil {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.MessageRepository().SetIndexId(ctx, userMsg.Id, codeID); err != nil {
			s.logger.Error("REVIEW", "Failed to link message to index entry", map[string]interface{}{
				"message_id": userMsg.Id.String(),
				"code_id":    codeID,
				"error":      err.Error(),
			})
		}
	}

	similarContext := s.retrieveContext(ctx, codeID, code)
	prompt := fmt.Sprintf(constant.ReviewPromptTemplate, similarContext, code)

	res := &dto.ReviewResponse{CodeId: codeID}
	review, err := s.completer.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("REVIEW", "Completion call failed", map[string]interface{}{
			"code_id": codeID,
			"error":   err.Error(),
		})
		res.Review = constant.ReviewErrorPrefix + err.Error()
		res.ReviewFailed = true
	} else {
		res.Review = review
	}

	if conv != nil {
		res.ConversationId = conv.Id.String()
		if userMsg != nil {
			s.persistReview(ctx, userID, conv, res)
		}
	}

	outcome := "ok"
	if res.ReviewFailed {
		outcome = "failed"
	}
	metrics.Reviews.WithLabelValues(source, outcome).Inc()
	metrics.ReviewDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	payload := map[string]interface{}{
		"code_id":       codeID,
		"source":        source,
		"review_failed": res.ReviewFailed,
	}
	if userID != nil {
		payload["user_id"] = *userID
	}
	publish(ctx, s.publisher, s.logger, events.New(events.ReviewCreated, payload))

	s.logger.Info("REVIEW", "Review completed", map[string]interface{}{
		"code_id":       codeID,
		"source":        source,
		"review_failed": res.ReviewFailed,
		"with_context":  similarContext != "",
	})

	return res, nil
}

// retrieveContext joins the code of up to ReviewContextSize prior
// submissions most similar to code. Failures yield "".
func (s *reviewService) retrieveContext(ctx context.Context, codeID, code string) string {
	matches, err := s.gateway.Query(ctx, code, constant.ReviewContextSize+1)
	if err != nil {
		s.logger.Warn("REVIEW", "Similarity query failed", map[string]interface{}{
			"code_id": codeID,
			"error":   err.Error(),
		})
		return ""
	}

	snippets := make([]string, 0, constant.ReviewContextSize)
	for _, m := range matches {
		if m.ID == codeID {
			continue
		}
		if snippet := m.Code(); snippet != "" {
			snippets = append(snippets, snippet)
		}
		if len(snippets) == constant.ReviewContextSize {
			break
		}
	}
	return strings.Join(snippets, "\n")
}

// persistSubmission records the user message, creating the conversation
// when existing is nil. Both are created in one transaction. Failures are
// logged and yield a nil message.
func (s *reviewService) persistSubmission(
	ctx context.Context,
	userID *string,
	existing *entity.Conversation,
	code string,
	meta map[string]interface{},
) (*entity.Conversation, *entity.Message) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		s.logPersistError("begin transaction", err)
		return existing, nil
	}
	defer uow.Rollback()

	conv := existing
	if conv == nil {
		conv = &entity.Conversation{
			UserId: userID,
			Title:  conversationTitle(code),
		}
		if err := uow.ConversationRepository().Create(ctx, conv); err != nil {
			s.logPersistError("create conversation", err)
			return existing, nil
		}
	}

	msg := &entity.Message{
		ConversationId: conv.Id,
		UserId:         userID,
		Role:           entity.MessageRoleUser,
		Text:           code,
		Metadata:       meta,
	}
	if err := uow.MessageRepository().Create(ctx, msg); err != nil {
		s.logPersistError("create user message", err)
		return existing, nil
	}

	if err := uow.Commit(); err != nil {
		s.logPersistError("commit submission", err)
		return existing, nil
	}
	return conv, msg
}

func (s *reviewService) persistReview(ctx context.Context, userID *string, conv *entity.Conversation, res *dto.ReviewResponse) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	msg := &entity.Message{
		ConversationId: conv.Id,
		UserId:         userID,
		Role:           entity.MessageRoleAssistant,
		Text:           res.Review,
		Metadata: map[string]interface{}{
			"code_id":       res.CodeId,
			"review_failed": res.ReviewFailed,
		},
	}
	if err := uow.MessageRepository().Create(ctx, msg); err != nil {
		s.logPersistError("create assistant message", err)
	}
}

func (s *reviewService) logPersistError(step string, err error) {
	s.logger.Error("REVIEW", "Failed to persist review history", map[string]interface{}{
		"step":  step,
		"error": err.Error(),
	})
}

// conversationTitle is the first non-blank line of code, cut to ConversationTitleMaxLen runes.
func conversationTitle(code string) string {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > constant.ConversationTitleMaxLen {
			return string(runes[:constant.ConversationTitleMaxLen])
		}
		return line
	}
	return "Code review"
}
