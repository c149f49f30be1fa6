package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	body []byte
	err  error
}

// fakeBedrock serves queued per-attempt results and records every request
type fakeBedrock struct {
	calls    []fakeCall
	attempts int
	bodies   [][]byte
	modelIDs []string
}

var _ bedrockAPI = (*fakeBedrock)(nil)

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	index := f.attempts
	if index >= len(f.calls) {
		index = len(f.calls) - 1
	}
	f.attempts++
	f.bodies = append(f.bodies, params.Body)
	if params.ModelId != nil {
		f.modelIDs = append(f.modelIDs, *params.ModelId)
	}

	call := f.calls[index]
	if call.err != nil {
		return nil, call.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: call.body}, nil
}

func newTestClient(calls ...fakeCall) (*BedrockClient, *fakeBedrock) {
	fake := &fakeBedrock{calls: calls}
	return &BedrockClient{client: fake, modelID: "test-model"}, fake
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful call returns the output text", func(t *testing.T) {
		client, fake := newTestClient(fakeCall{body: []byte(`{"outputText": "hello"}`)})

		text, err := client.Invoke(ctx, "a prompt", 512)
		assert.NoError(t, err, "Expected Invoke to not return an error")
		assert.Equal(t, "hello", text, "Expected the model output text")
		assert.Equal(t, 1, fake.attempts, "Expected a single attempt on success")
		require.Len(t, fake.modelIDs, 1)
		assert.Equal(t, "test-model", fake.modelIDs[0], "Expected the configured model id")

		var request invokeRequest
		require.NoError(t, json.Unmarshal(fake.bodies[0], &request))
		assert.Equal(t, "a prompt", request.InputText, "Expected the prompt in the request body")
		assert.Equal(t, 512, request.TextGenerationConfig.MaxTokenCount, "Expected the token bound to be passed through")
		assert.Equal(t, 0.2, request.TextGenerationConfig.Temperature, "Expected the fixed temperature")
		assert.Equal(t, 0.9, request.TextGenerationConfig.TopP, "Expected the fixed topP")
	})

	t.Run("Transient failures are retried", func(t *testing.T) {
		client, fake := newTestClient(
			fakeCall{err: errors.New("throttled")},
			fakeCall{err: errors.New("throttled")},
			fakeCall{body: []byte(`{"outputText": "recovered"}`)},
		)

		text, err := client.Invoke(ctx, "a prompt", 512)
		assert.NoError(t, err, "Expected the final attempt to succeed")
		assert.Equal(t, "recovered", text, "Expected the recovered output")
		assert.Equal(t, retryMaxAttempts, fake.attempts, "Expected every attempt to be used")
	})

	t.Run("Empty output is retried", func(t *testing.T) {
		client, fake := newTestClient(
			fakeCall{body: []byte(`{"outputText": ""}`)},
			fakeCall{body: []byte(`{"outputText": "second try"}`)},
		)

		text, err := client.Invoke(ctx, "a prompt", 512)
		assert.NoError(t, err, "Expected the retry to absorb the empty response")
		assert.Equal(t, "second try", text)
		assert.Equal(t, 2, fake.attempts, "Expected the empty response to count as a failed attempt")
	})

	t.Run("Exhausted retries fail the call", func(t *testing.T) {
		client, fake := newTestClient(fakeCall{err: errors.New("backend unavailable")})

		_, err := client.Invoke(ctx, "a prompt", 512)
		assert.Error(t, err, "Expected the exhausted retries to surface an error")
		assert.Contains(t, err.Error(), "invoke model", "Expected the failing operation in the error")
		assert.Equal(t, retryMaxAttempts, fake.attempts, "Expected exactly the retry budget to be spent")
	})

	t.Run("Cancelled context stops retrying", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		client, fake := newTestClient(fakeCall{err: errors.New("backend unavailable")})

		_, err := client.Invoke(cancelled, "a prompt", 512)
		assert.Error(t, err, "Expected the cancelled context to fail the call")
		assert.LessOrEqual(t, fake.attempts, 1, "Expected no further attempts after cancellation")
	})
}

func TestParseOutputText(t *testing.T) {
	t.Run("Top-level outputText", func(t *testing.T) {
		text, err := parseOutputText([]byte(`{"outputText": "direct"}`))
		assert.NoError(t, err)
		assert.Equal(t, "direct", text, "Expected the top-level field")
	})

	t.Run("Results list fallback", func(t *testing.T) {
		text, err := parseOutputText([]byte(`{"results": [{"outputText": "nested"}, {"outputText": "ignored"}]}`))
		assert.NoError(t, err)
		assert.Equal(t, "nested", text, "Expected the first results entry")
	})

	t.Run("Top-level field wins over results", func(t *testing.T) {
		text, err := parseOutputText([]byte(`{"outputText": "direct", "results": [{"outputText": "nested"}]}`))
		assert.NoError(t, err)
		assert.Equal(t, "direct", text, "Expected the top-level field to take precedence")
	})

	t.Run("Empty output is an error", func(t *testing.T) {
		_, err := parseOutputText([]byte(`{"results": []}`))
		assert.Error(t, err, "Expected error for a response without text")
		assert.Contains(t, err.Error(), "empty response", "Expected the empty-response error")
	})

	t.Run("Invalid body is an error", func(t *testing.T) {
		_, err := parseOutputText([]byte("not json"))
		assert.Error(t, err, "Expected error for an unparsable body")
	})
}
