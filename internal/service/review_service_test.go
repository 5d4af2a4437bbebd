package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"code-review-be/internal/constant"
	"code-review-be/internal/dto"
	"code-review-be/internal/entity"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/repository/specification"
	"code-review-be/internal/repository/unitofwork"
	"code-review-be/pkg/embedding"
	"code-review-be/pkg/events"
	"code-review-be/pkg/llm"
	"code-review-be/pkg/rag"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteEmbedder buckets bytes into a small vector; identical texts embed identically.
type byteEmbedder struct{}

func (byteEmbedder) Dimensions() int { return 8 }

func (byteEmbedder) Generate(_ context.Context, text, _ string) (*embedding.EmbeddingResponse, error) {
	vec := make([]float32, 8)
	for i := 0; i < len(text); i++ {
		vec[text[i]%8]++
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: embedding.NormalizeVector(vec)},
	}, nil
}

type flakyGateway struct {
	inner    SimilarityGateway
	storeErr error
	queryErr error
}

func (g *flakyGateway) Store(ctx context.Context, id, text string) error {
	if g.storeErr != nil {
		return g.storeErr
	}
	return g.inner.Store(ctx, id, text)
}

func (g *flakyGateway) Query(ctx context.Context, text string, k int) ([]rag.Match, error) {
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	return g.inner.Query(ctx, text, k)
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (c *fakeCompleter) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	return c.Generate(ctx, history[len(history)-1].Content)
}

func (c *fakeCompleter) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *fakeCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

type reviewFixture struct {
	svc       IReviewService
	gateway   *flakyGateway
	completer *fakeCompleter
	events    *events.Recorder
	uow       unitofwork.RepositoryFactory
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	g := rag.NewGateway(byteEmbedder{}, rag.NewMemoryIndex())
	require.NoError(t, g.EnsureIndex(context.Background()))

	f := &reviewFixture{
		gateway:   &flakyGateway{inner: g},
		completer: &fakeCompleter{reply: "Looks good."},
		events:    &events.Recorder{},
		uow:       unitofwork.NewRepositoryFactory(newTestDB(t)),
	}
	f.svc = NewReviewService(f.uow, f.gateway, f.completer, f.events, logger.NewNopLogger())
	return f
}

func (f *reviewFixture) messages(t *testing.T, conversationID string) []*entity.Message {
	t.Helper()
	ctx := context.Background()
	msgs, err := f.uow.NewUnitOfWork(ctx).MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: uuid.MustParse(conversationID)},
		specification.OrderBy{Field: "created_at"},
	)
	require.NoError(t, err)
	return msgs
}

func promptContext(prompt string) string {
	const head = "Review the following code. Similar code examples:\n"
	rest := strings.TrimPrefix(prompt, head)
	return rest[:strings.Index(rest, "\n\nCode to review:\n")]
}

func TestReviewText_EmptyCode(t *testing.T) {
	f := newReviewFixture(t)
	for _, code := range []string{"", "   ", "\n\t\n"} {
		_, err := f.svc.ReviewText(context.Background(), nil, &dto.ReviewTextRequest{Code: code})
		requireAppError(t, err, http.StatusBadRequest, apperror.CodeEmptyCode)
	}
	assert.Empty(t, f.completer.prompts)
}

func TestReviewText_FirstSubmissionHasNoContext(t *testing.T) {
	f := newReviewFixture(t)
	code := "def add(a, b):\n    return a + b\n"

	res, err := f.svc.ReviewText(context.Background(), nil, &dto.ReviewTextRequest{Code: code})
	require.NoError(t, err)

	assert.Equal(t, "Looks good.", res.Review)
	assert.False(t, res.ReviewFailed)
	_, err = uuid.Parse(res.CodeId)
	assert.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(constant.ReviewPromptTemplate, "", code), f.completer.lastPrompt())
	assert.Equal(t, []string{events.ReviewCreated}, f.events.Types())
}

func TestReviewText_PersistsConversationAndBackfillsIndexId(t *testing.T) {
	f := newReviewFixture(t)
	userID := "user12345678"

	res, err := f.svc.ReviewText(context.Background(), &userID, &dto.ReviewTextRequest{Code: "\n  package main  \nfunc main() {}"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ConversationId)

	ctx := context.Background()
	conv, err := f.uow.NewUnitOfWork(ctx).ConversationRepository().FindOne(ctx, specification.ByID{ID: uuid.MustParse(res.ConversationId)})
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "package main", conv.Title)
	require.NotNil(t, conv.UserId)
	assert.Equal(t, userID, *conv.UserId)

	msgs := f.messages(t, res.ConversationId)
	require.Len(t, msgs, 2)
	assert.Equal(t, entity.MessageRoleUser, msgs[0].Role)
	require.NotNil(t, msgs[0].IndexId)
	assert.Equal(t, res.CodeId, *msgs[0].IndexId)
	assert.Equal(t, entity.MessageRoleAssistant, msgs[1].Role)
	assert.Equal(t, "Looks good.", msgs[1].Text)
	assert.Nil(t, msgs[1].IndexId)
}

func TestReviewText_UsesPriorSubmissionsAsContext(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	prior := []string{"aaaa", "aaab", "aabb", "abbb", "bbbb"}
	for _, code := range prior {
		_, err := f.svc.ReviewText(ctx, nil, &dto.ReviewTextRequest{Code: code})
		require.NoError(t, err)
	}

	_, err := f.svc.ReviewText(ctx, nil, &dto.ReviewTextRequest{Code: "aaaa"})
	require.NoError(t, err)

	snippets := strings.Split(promptContext(f.completer.lastPrompt()), "\n")
	require.Len(t, snippets, 3)
	// the earlier identical submission ranks first; the new one is never its own context
	assert.Equal(t, "aaaa", snippets[0])
	for _, s := range snippets {
		assert.Contains(t, prior, s)
	}
}

func TestReviewText_CompletionFailureIsReturnedAsReview(t *testing.T) {
	f := newReviewFixture(t)
	f.completer.err = errors.New("upstream 503")

	res, err := f.svc.ReviewText(context.Background(), nil, &dto.ReviewTextRequest{Code: "x = 1"})
	require.NoError(t, err)
	assert.True(t, res.ReviewFailed)
	assert.Equal(t, "Error generating review: upstream 503", res.Review)
	assert.NotEmpty(t, res.CodeId)
}

func TestReviewText_IndexFailuresDegradeToNoContext(t *testing.T) {
	f := newReviewFixture(t)
	f.gateway.storeErr = errors.New("embedding provider down")
	f.gateway.queryErr = errors.New("embedding provider down")

	res, err := f.svc.ReviewText(context.Background(), nil, &dto.ReviewTextRequest{Code: "x = 1"})
	require.NoError(t, err)
	assert.False(t, res.ReviewFailed)
	assert.Equal(t, "", promptContext(f.completer.lastPrompt()))

	msgs := f.messages(t, res.ConversationId)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].IndexId)
}

func TestReviewText_ConversationId(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	owner := "owner1234567"
	other := "other1234567"

	first, err := f.svc.ReviewText(ctx, &owner, &dto.ReviewTextRequest{Code: "a = 1"})
	require.NoError(t, err)

	second, err := f.svc.ReviewText(ctx, &owner, &dto.ReviewTextRequest{Code: "b = 2", ConversationId: first.ConversationId})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationId, second.ConversationId)
	assert.Len(t, f.messages(t, first.ConversationId), 4)

	tests := []struct {
		name   string
		userID *string
		convID string
	}{
		{name: "unknown id", userID: &owner, convID: uuid.NewString()},
		{name: "malformed id", userID: &owner, convID: "not-a-uuid"},
		{name: "someone else's conversation", userID: &other, convID: first.ConversationId},
		{name: "anonymous caller on owned conversation", userID: nil, convID: first.ConversationId},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ReviewText(ctx, tt.userID, &dto.ReviewTextRequest{Code: "c = 3", ConversationId: tt.convID})
			requireAppError(t, err, http.StatusNotFound, apperror.CodeConversationNotFound)
		})
	}
}

func TestReviewFile_Validation(t *testing.T) {
	f := newReviewFixture(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
		code     string
	}{
		{name: "unsupported extension", filename: "notes.txt", content: []byte("hello"), status: http.StatusBadRequest, code: apperror.CodeUnsupportedFileType},
		{name: "no extension", filename: "Makefile", content: []byte("all:"), status: http.StatusBadRequest, code: apperror.CodeUnsupportedFileType},
		{name: "invalid utf-8", filename: "main.go", content: []byte{0xff, 0xfe, 0xfd}, status: http.StatusBadRequest, code: apperror.CodeInvalidEncoding},
		{name: "blank file", filename: "main.go", content: []byte("  \n"), status: http.StatusBadRequest, code: apperror.CodeEmptyCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ReviewFile(context.Background(), nil, &dto.ReviewFileRequest{Filename: tt.filename, Content: tt.content})
			requireAppError(t, err, tt.status, tt.code)
		})
	}
	assert.Empty(t, f.completer.prompts)
}

func TestReviewFile_DetectsLanguageAndFrameworks(t *testing.T) {
	f := newReviewFixture(t)
	src := "import React from 'react'\n\nexport const App = () => null\n"

	res, err := f.svc.ReviewFile(context.Background(), nil, &dto.ReviewFileRequest{Filename: "App.js", Content: []byte(src)})
	require.NoError(t, err)

	assert.Equal(t, "App.js", res.Filename)
	require.NotNil(t, res.DetectedLanguage)
	assert.Equal(t, "javascript", *res.DetectedLanguage)
	assert.Equal(t, []string{"react"}, res.DetectedFrameworks)
	assert.Equal(t, "Looks good.", res.Review)
	assert.NotEmpty(t, res.CodeId)
	assert.Contains(t, f.completer.lastPrompt(), src)

	msgs := f.messages(t, res.ConversationId)
	require.Len(t, msgs, 2)
	assert.Equal(t, "App.js", msgs[0].Metadata["filename"])
	assert.Equal(t, "javascript", msgs[0].Metadata["detected_language"])
}

func TestConversationTitle(t *testing.T) {
	long := strings.Repeat("é", 100)
	tests := []struct {
		code string
		want string
	}{
		{"print(1)", "print(1)"},
		{"\n\n   fn main() {}\nmore", "fn main() {}"},
		{long, strings.Repeat("é", constant.ConversationTitleMaxLen)},
		{"\n \n", "Code review"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, conversationTitle(tt.code))
	}
}
