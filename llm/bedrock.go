package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"

	"github.com/aiscope/aiscope/helper"
)

const (
	retryMaxAttempts    = 3
	retryBaseInterval   = 1 * time.Second
	retryMaxInterval    = 20 * time.Second
	defaultModelTimeout = 60 * time.Second
)

// Config holds the Bedrock model configuration
type Config struct {
	Region  string
	ModelID string
}

// NewConfigFromEnv reads the model configuration from the environment
// (a .env file is loaded first if present). Both AISCOPE_AWS_REGION and
// AISCOPE_BEDROCK_MODEL_ID are required; a missing value is a startup
// failure, not something to retry.
func NewConfigFromEnv() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Region:  os.Getenv("AISCOPE_AWS_REGION"),
		ModelID: os.Getenv("AISCOPE_BEDROCK_MODEL_ID"),
	}

	if config.Region == "" || config.ModelID == "" {
		return nil, fmt.Errorf("AISCOPE_AWS_REGION and AISCOPE_BEDROCK_MODEL_ID must be set")
	}

	return config, nil
}

// bedrockAPI is the slice of the Bedrock runtime API the client uses
type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient invokes a text-generation model on AWS Bedrock
type BedrockClient struct {
	client  bedrockAPI
	modelID string
}

// NewBedrockClient creates a Bedrock client for the configured region and model
func NewBedrockClient(ctx context.Context, config *Config) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, helper.NewError("load aws configuration", err)
	}

	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: config.ModelID,
	}, nil
}

type textGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

type invokeRequest struct {
	InputText            string               `json:"inputText"`
	TextGenerationConfig textGenerationConfig `json:"textGenerationConfig"`
}

type invokeResult struct {
	OutputText string `json:"outputText"`
}

type invokeResponse struct {
	OutputText string         `json:"outputText"`
	Results    []invokeResult `json:"results"`
}

// Invoke sends the prompt to the model and returns its output text.
// Transient failures (backend errors, empty output) are retried up to 3
// attempts with exponential backoff between 1s and 20s; after exhaustion the
// last error is returned and the caller's unit of work fails as a whole.
func (c *BedrockClient) Invoke(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(invokeRequest{
		InputText: prompt,
		TextGenerationConfig: textGenerationConfig{
			MaxTokenCount: maxTokens,
			Temperature:   0.2,
			TopP:          0.9,
		},
	})
	if err != nil {
		return "", helper.NewError("marshal request body", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseInterval
	policy.MaxInterval = retryMaxInterval

	var text string
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, defaultModelTimeout)
		defer cancel()

		output, err := c.client.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
			ModelId:     &c.modelID,
			Body:        body,
			ContentType: stringPtr("application/json"),
			Accept:      stringPtr("application/json"),
		})
		if err != nil {
			return err
		}

		parsed, err := parseOutputText(output.Body)
		if err != nil {
			return err
		}

		text = parsed
		return nil
	}

	err = backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, retryMaxAttempts-1), ctx),
	)
	if err != nil {
		return "", helper.NewError("invoke model", err)
	}

	return text, nil
}

// parseOutputText extracts the generated text from the response body.
// Bedrock models shape outputs slightly differently: either a top-level
// outputText or a results list carrying it.
func parseOutputText(body []byte) (string, error) {
	var response invokeResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("unexpected response body: %w", err)
	}

	text := response.OutputText
	if text == "" && len(response.Results) > 0 {
		text = response.Results[0].OutputText
	}
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}

	return text, nil
}

func stringPtr(s string) *string {
	return &s
}
