package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// invokeAPI is the slice of the Bedrock runtime client we call, extracted so
// tests can inject a stub.
type invokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// bedrockEmbedder invokes Amazon Bedrock embedding models. Credentials come
// from the process's ambient AWS chain; there is no key field.
type bedrockEmbedder struct {
	client  invokeAPI
	modelID string
	dim     int
}

// Titan request/response shapes (amazon.titan-embed-*).
type titanRequest struct {
	InputText string `json:"inputText"`
	// Dimensions is honored by titan-embed-text-v2 and ignored by v1.
	Dimensions int `json:"dimensions,omitempty"`
}

type titanResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Cohere-on-Bedrock request/response shapes (cohere.embed-*).
type bedrockCohereRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type bedrockCohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newBedrock(ctx context.Context, cfg Config, modelID string) (*bedrockEmbedder, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &bedrockEmbedder{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
		dim:     cfg.Dimension,
	}, nil
}

func (e *bedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, fmt.Errorf("bedrock returned no embeddings")
	}
	return vs[0], nil
}

func (e *bedrockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if strings.HasPrefix(e.modelID, "cohere.") {
		return e.invokeCohere(ctx, texts)
	}
	// Titan models take one text per invocation.
	vs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.invokeTitan(ctx, text)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (e *bedrockEmbedder) invokeTitan(ctx context.Context, text string) ([]float32, error) {
	req := titanRequest{InputText: text}
	if strings.Contains(e.modelID, "embed-text-v2") {
		req.Dimensions = e.dim
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal titan request: %w", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke bedrock model %s: %w", e.modelID, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode titan response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("bedrock returned an empty embedding")
	}
	return resp.Embedding, nil
}

func (e *bedrockEmbedder) invokeCohere(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(bedrockCohereRequest{Texts: texts, InputType: "search_document"})
	if err != nil {
		return nil, fmt.Errorf("marshal cohere request: %w", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke bedrock model %s: %w", e.modelID, err)
	}

	var resp bedrockCohereResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode cohere response: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("bedrock returned no embeddings")
	}
	return resp.Embeddings, nil
}

func (e *bedrockEmbedder) Dimension() int { return e.dim }
