package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semflow/inference-gateway/internal/errkind"
)

// stubEncoder returns a deterministic 3-dim vector per text and
// records every batch it is invoked with.
type stubEncoder struct {
	batches [][]string
	err     error
	panicOn bool
}

func (s *stubEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if s.panicOn {
		panic("encoder exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, append([]string(nil), texts...))

	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, stubVector(t))
	}
	return out, nil
}

func (s *stubEncoder) Dimension() int    { return 3 }
func (s *stubEncoder) ModelName() string { return "stub" }

func stubVector(text string) []float32 {
	return []float32{float32(len(text)), float32(len(text)) * 2, float32(len(text)) * 3}
}

func batchSizes(batches [][]string) []int {
	sizes := make([]int, 0, len(batches))
	for _, b := range batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func TestProcessEmbeddingPreservesOrder(t *testing.T) {
	enc := &stubEncoder{}
	svc := NewEmbeddingService(enc, nil, nil)

	texts := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		texts = append(texts, fmt.Sprintf("text number %d", i))
	}

	result, err := svc.ProcessEmbedding(context.Background(), EmbeddingRequest{
		ReqID: "req-test-order",
		Texts: texts,
	}, "test", "worker-1")
	require.NoError(t, err)

	require.Len(t, result.Embeddings, len(texts))
	for i, text := range texts {
		assert.Equal(t, stubVector(text), result.Embeddings[i], "embedding %d must correspond to input %d", i, i)
	}
}

func TestProcessEmbeddingEmptyInput(t *testing.T) {
	enc := &stubEncoder{}
	svc := NewEmbeddingService(enc, nil, nil)

	result, err := svc.ProcessEmbedding(context.Background(), EmbeddingRequest{
		ReqID: "req-test-empty",
		Texts: []string{},
	}, "test", "worker-1")
	require.NoError(t, err)

	assert.NotNil(t, result.Embeddings)
	assert.Empty(t, result.Embeddings)
	assert.Empty(t, enc.batches, "encoder must not be invoked for empty input")
}

func TestBatchSizeShortTexts(t *testing.T) {
	enc := &stubEncoder{}
	svc := NewEmbeddingService(enc, nil, nil)

	// 120 texts, all well under the long-text threshold: chunks of 50.
	texts := make([]string, 120)
	for i := range texts {
		texts[i] = strings.Repeat("a", 100)
	}

	result, err := svc.ProcessEmbedding(context.Background(), EmbeddingRequest{
		ReqID: "req-test-short",
		Texts: texts,
	}, "test", "worker-1")
	require.NoError(t, err)

	assert.Equal(t, 50, result.BatchSize)
	assert.Equal(t, []int{50, 50, 20}, batchSizes(enc.batches))
}

func TestBatchSizeLongText(t *testing.T) {
	enc := &stubEncoder{}
	svc := NewEmbeddingService(enc, nil, nil)

	// One 15000-char text forces small batches for the whole request.
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "short"
	}
	texts[7] = strings.Repeat("x", 15000)

	result, err := svc.ProcessEmbedding(context.Background(), EmbeddingRequest{
		ReqID: "req-test-long",
		Texts: texts,
	}, "test", "worker-1")
	require.NoError(t, err)

	assert.Equal(t, 10, result.BatchSize)
	assert.Equal(t, []int{10, 10, 5}, batchSizes(enc.batches))
}

func TestBatchSizeThresholdBoundary(t *testing.T) {
	// Exactly at the threshold still counts as short.
	assert.Equal(t, 50, BatchSizeFor(10000))
	assert.Equal(t, 10, BatchSizeFor(10001))
	assert.Equal(t, 50, BatchSizeFor(0))
}

func TestProcessEmbeddingEncoderError(t *testing.T) {
	enc := &stubEncoder{err: errors.New("model blew up")}
	svc := NewEmbeddingService(enc, nil, nil)

	result, err := svc.ProcessEmbedding(context.Background(), EmbeddingRequest{
		ReqID: "req-test-error",
		Texts: []string{"hello"},
	}, "test", "worker-1")
	require.Error(t, err)
	assert.Nil(t, result)

	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errkind.Internal, e.Kind)
	assert.Equal(t, "req-test-error", e.RequestID)
	assert.Contains(t, e.Message, "model blew up")
}

func TestProcessEmbeddingRecoverFromPanic(t *testing.T) {
	enc := &stubEncoder{panicOn: true}
	svc := NewEmbeddingService(enc, nil, nil)

	result, err := svc.ProcessEmbedding(context.Background(), EmbeddingRequest{
		ReqID: "req-test-panic",
		Texts: []string{"hello"},
	}, "test", "worker-1")
	require.Error(t, err)
	assert.Nil(t, result)

	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errkind.Internal, e.Kind)
	assert.Contains(t, e.Message, "encoder panic")
}
