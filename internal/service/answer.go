package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
)

// FallbackAnswer is returned when no chunk clears the similarity threshold.
const FallbackAnswer = "I couldn't find anything in the knowledge base that answers this question. " +
	"Please rephrase it or contact support for further help."

const DefaultMaxContextChars = 6000

const answerSystemPrompt = `You are a support assistant answering customer questions from a company knowledge base.
Rules:
- Answer only from the numbered context passages below. Do not use outside knowledge.
- Keep the answer concise.
- End with a "Sources:" line listing the titles of the passages you used.
- If the context does not contain enough information to answer, say so plainly and do not guess.`

// ChatCompleter sends one system and one user message to a language model.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type AnswerSynthesizer struct {
	llm             ChatCompleter
	maxContextChars int
}

func NewAnswerSynthesizer(llm ChatCompleter, maxContextChars int) *AnswerSynthesizer {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &AnswerSynthesizer{llm: llm, maxContextChars: maxContextChars}
}

// Answer grounds a response in results. With no results the fallback text is
// returned and the model is not called.
func (s *AnswerSynthesizer) Answer(ctx context.Context, query string, results []domain.SearchResult) (*domain.Answer, error) {
	if len(results) == 0 {
		return &domain.Answer{
			Text:            FallbackAnswer,
			CitedArticleIDs: []string{},
			UsedFallback:    true,
		}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "AnswerSynthesizer.Answer", telemetry.SpanAttributes{
		Operation: "answer",
	})
	defer span.End()

	contextBlock, cited := s.buildContext(results)
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, strings.TrimSpace(query))

	text, err := s.llm.Complete(ctx, answerSystemPrompt, user)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetOK()
	return &domain.Answer{
		Text:            strings.TrimSpace(text),
		CitedArticleIDs: cited,
	}, nil
}

// buildContext renders results in rank order until the character budget is
// spent. The first entry is always included, truncated if it alone is over
// budget.
func (s *AnswerSynthesizer) buildContext(results []domain.SearchResult) (string, []string) {
	var b strings.Builder
	var cited []string
	seen := make(map[string]struct{})
	used := 0

	for i, r := range results {
		entry := fmt.Sprintf("[%d] Source: %s\n%s", i+1, r.ArticleTitle, r.ChunkText)
		sep := ""
		if i > 0 {
			sep = "\n\n"
		}
		size := utf8.RuneCountInString(sep) + utf8.RuneCountInString(entry)

		if used+size > s.maxContextChars {
			if i > 0 {
				break
			}
			entry = string([]rune(entry)[:s.maxContextChars])
			size = s.maxContextChars
		}

		b.WriteString(sep)
		b.WriteString(entry)
		used += size

		if _, ok := seen[r.ArticleID]; !ok {
			seen[r.ArticleID] = struct{}{}
			cited = append(cited, r.ArticleID)
		}
	}
	return b.String(), cited
}
