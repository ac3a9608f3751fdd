package encoder

import (
	"context"
	"sync"
)

// Encoder turns a batch of texts into fixed-length vectors, one per
// input, order preserved. Implementations are treated as opaque: the
// pipeline never looks inside the vectors it gets back.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// Serialized wraps an Encoder that is not safe for concurrent
// invocation. The single shared model instance is invoked by every
// worker; the mutex makes those invocations strictly sequential.
type Serialized struct {
	inner Encoder
	mu    sync.Mutex
}

func Serialize(e Encoder) *Serialized {
	return &Serialized{inner: e}
}

func (s *Serialized) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Encode(ctx, texts)
}

func (s *Serialized) Dimension() int {
	return s.inner.Dimension()
}

func (s *Serialized) ModelName() string {
	return s.inner.ModelName()
}
