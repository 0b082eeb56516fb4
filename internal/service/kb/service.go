// Package kb builds retrieve-and-generate requests for a managed Bedrock
// knowledge base and exposes the streamed answer.
package kb

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/leomaro7/kb-chat/internal/config"
	"github.com/leomaro7/kb-chat/internal/model/chat"
)

// StreamAPI is the slice of the Bedrock agent runtime client the service uses.
type StreamAPI interface {
	RetrieveAndGenerateStream(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateStreamInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateStreamOutput, error)
}

// Service forwards chat questions to the managed retrieval-and-generation API.
type Service struct {
	api StreamAPI
	cfg config.KBConfig
}

// New creates a knowledge-base query service.
func New(api StreamAPI, cfg config.KBConfig) *Service {
	return &Service{api: api, cfg: cfg}
}

// QueryInput carries one question plus its conversational and sampling context.
type QueryInput struct {
	SessionID   string
	Question    string
	History     []chat.Message
	DocVersion  string
	Temperature float32
	TopP        float32
}

// Query sends the question to the knowledge base and returns the answer stream.
func (s *Service) Query(ctx context.Context, in QueryInput) (*Stream, error) {
	out, err := s.api.RetrieveAndGenerateStream(ctx, s.buildRequest(in))
	if err != nil {
		return nil, fmt.Errorf("retrieve and generate stream: %w", err)
	}

	log.Printf("[kb] stream opened for session=%s ver=%s", in.SessionID, in.DocVersion)
	return wrapEventStream(out.GetStream()), nil
}

func (s *Service) buildRequest(in QueryInput) *bedrockagentruntime.RetrieveAndGenerateStreamInput {
	prompt := buildPrompt(recentExchanges(in.History, s.cfg.HistoryLimit), in.Question)

	return &bedrockagentruntime.RetrieveAndGenerateStreamInput{
		Input: &types.RetrieveAndGenerateInput{
			Text: aws.String(prompt),
		},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(s.cfg.KnowledgeBaseID),
				ModelArn:        aws.String(s.cfg.ModelArn),
				GenerationConfiguration: &types.GenerationConfiguration{
					PromptTemplate: &types.PromptTemplate{
						TextPromptTemplate: aws.String(answerTemplate),
					},
					InferenceConfig: &types.InferenceConfig{
						TextInferenceConfig: &types.TextInferenceConfig{
							MaxTokens:   aws.Int32(s.cfg.MaxTokens),
							Temperature: aws.Float32(in.Temperature),
							TopP:        aws.Float32(in.TopP),
						},
					},
				},
				RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
						NumberOfResults: aws.Int32(s.cfg.NumResults),
						Filter: &types.RetrievalFilterMemberEquals{
							Value: types.FilterAttribute{
								Key:   aws.String(s.cfg.FilterKey),
								Value: document.NewLazyDocument(in.DocVersion),
							},
						},
					},
				},
			},
		},
	}
}
