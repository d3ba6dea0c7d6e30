package service

import (
	"context"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
)

// KnowledgeBase combines retrieval and answer synthesis.
type KnowledgeBase struct {
	retriever   *Retriever
	synthesizer *AnswerSynthesizer
}

func NewKnowledgeBase(retriever *Retriever, synthesizer *AnswerSynthesizer) *KnowledgeBase {
	return &KnowledgeBase{retriever: retriever, synthesizer: synthesizer}
}

func (k *KnowledgeBase) Search(ctx context.Context, input SearchInput) ([]domain.SearchResult, error) {
	return k.retriever.Search(ctx, input)
}

// Answer searches with the retriever defaults and synthesizes a grounded answer.
func (k *KnowledgeBase) Answer(ctx context.Context, orgID, query string) (*domain.Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeBase.Answer", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "answer",
	})
	defer span.End()

	results, err := k.retriever.Search(ctx, SearchInput{OrgID: orgID, Query: query})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	answer, err := k.synthesizer.Answer(ctx, query, results)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetOK()
	return answer, nil
}
