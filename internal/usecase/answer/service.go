package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/record"
	"github.com/kailas-cloud/ragdex/internal/logger"
)

// DefaultSystemPrompt keeps the model on the retrieved context.
const DefaultSystemPrompt = "You are a careful assistant. " +
	"Answer using only the provided context. " +
	"Cite the passages you rely on with [source: title]. " +
	"If the context does not contain the answer, say so."

// Answer is a generated reply together with the context it was grounded on.
type Answer struct {
	Text string
	Hits []record.Hit
}

// Options tune prompt composition.
type Options struct {
	SystemPrompt string
	// Instructions are appended to the user message after the context.
	Instructions []string
}

// Service composes retrieval and chat completion.
type Service struct {
	search Searcher
	chat   domain.Chatter
	opts   Options
}

// New creates an answer service.
func New(search Searcher, chat domain.Chatter, opts Options) *Service {
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Service{search: search, chat: chat, opts: opts}
}

// Answer retrieves k context records for question and asks the chat model to answer from them.
func (s *Service) Answer(ctx context.Context, question string, k int) (Answer, error) {
	hits, err := s.search.Search(ctx, question, k)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	text, err := s.chat.Chat(ctx, s.Messages(question, hits))
	if err != nil {
		return Answer{Hits: hits}, fmt.Errorf("compose answer: %w", err)
	}

	logger.FromContext(ctx).Debug("Answer composed",
		zap.Int("context_records", len(hits)),
		zap.Int("answer_len", len(text)),
	)
	return Answer{Text: text, Hits: hits}, nil
}

// Messages renders the system and user messages for question and its context.
func (s *Service) Messages(question string, hits []record.Hit) []domain.ChatMessage {
	var b strings.Builder
	b.WriteString("User query:\n")
	b.WriteString(question)
	b.WriteString("\n\nRelevant context:\n")
	b.WriteString(Context(hits))

	if len(s.opts.Instructions) > 0 {
		b.WriteString("\n\nInstructions:\n")
		for _, in := range s.opts.Instructions {
			b.WriteString("- ")
			b.WriteString(in)
			b.WriteString("\n")
		}
	}

	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: s.opts.SystemPrompt},
		{Role: domain.RoleUser, Content: strings.TrimRight(b.String(), "\n")},
	}
}

// Context renders hits as numbered blocks separated by blank lines.
func Context(hits []record.Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[%d] Title: %s\nSource: %s\nChunk %d:\n%s",
			i+1, h.Title, h.Source, h.ChunkID, h.Text)
	}
	return strings.Join(blocks, "\n\n")
}
