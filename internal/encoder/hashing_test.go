package encoder

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKnownModelDimension(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)
	assert.Equal(t, 384, m.Dimension())
	assert.Equal(t, "all-MiniLM-L6-v2", m.ModelName())

	m, err = Load("all-mpnet-base-v2", 0)
	require.NoError(t, err)
	assert.Equal(t, 768, m.Dimension())
}

func TestLoadUnknownModelFallsBack(t *testing.T) {
	m, err := Load("some-custom-checkpoint", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultDimension, m.Dimension())
}

func TestLoadExplicitDimension(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 512)
	require.NoError(t, err)
	assert.Equal(t, 512, m.Dimension())
}

func TestLoadRejectsEmptyName(t *testing.T) {
	_, err := Load("", 0)
	assert.Error(t, err)
}

func TestEncodeDeterministic(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)

	a, err := m.Encode(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)
	b, err := m.Encode(context.Background(), []string{"the quick brown fox"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncodeShapeAndNormalization(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)

	vecs, err := m.Encode(context.Background(), []string{"hello world", "another sentence here"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	for _, vec := range vecs {
		require.Len(t, vec, 384)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	}
}

func TestEncodeDifferentTextsDiffer(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)

	vecs, err := m.Encode(context.Background(), []string{"first text", "completely unrelated words"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestEncodeEmptyText(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)

	vecs, err := m.Encode(context.Background(), []string{""})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], 384)
}

func TestEncodeCancelledContext(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Encode(ctx, []string{"hello"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializedEncoderConcurrentUse(t *testing.T) {
	m, err := Load("all-MiniLM-L6-v2", 0)
	require.NoError(t, err)
	s := Serialize(m)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecs, err := s.Encode(context.Background(), []string{"concurrent call"})
			assert.NoError(t, err)
			assert.Len(t, vecs, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, m.Dimension(), s.Dimension())
	assert.Equal(t, m.ModelName(), s.ModelName())
}
