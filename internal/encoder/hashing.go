package encoder

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"
)

// Dimensions of the sentence-transformer checkpoints this service is
// normally deployed with. Unknown model names fall back to 384.
var knownDimensions = map[string]int{
	"all-MiniLM-L6-v2":  384,
	"all-MiniLM-L12-v2": 384,
	"all-mpnet-base-v2": 768,
}

const defaultDimension = 384

// Hashing is a deterministic feature-hashing sentence encoder. It
// stands in for a real transformer checkpoint: each token is hashed
// into a bucket of the output vector and the result is L2-normalized,
// so identical texts always produce identical unit vectors.
type Hashing struct {
	name string
	dim  int
}

// Load resolves a model identifier to an encoder instance. A zero dim
// picks the dimension the named checkpoint would have.
func Load(name string, dim int) (*Hashing, error) {
	if name == "" {
		return nil, fmt.Errorf("model name must not be empty")
	}
	if dim == 0 {
		if d, ok := knownDimensions[name]; ok {
			dim = d
		} else {
			dim = defaultDimension
		}
	}
	if dim < 1 {
		return nil, fmt.Errorf("invalid embedding dimension %d for model %s", dim, name)
	}

	start := time.Now()
	m := &Hashing{name: name, dim: dim}
	slog.Info("Model loaded",
		"model", name,
		"dimension", dim,
		"load_ms", time.Since(start).Milliseconds())
	return m, nil
}

func (h *Hashing) ModelName() string {
	return h.name
}

func (h *Hashing) Dimension() int {
	return h.dim
}

func (h *Hashing) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, h.encodeOne(text))
	}
	return out, nil
}

func (h *Hashing) encodeOne(text string) []float32 {
	vec := make([]float32, h.dim)

	tokens := tokenize(text)
	for _, tok := range tokens {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()

		bucket := int(sum % uint64(h.dim))
		// Second hash bit decides the sign, which keeps bucket
		// collisions from only accumulating in one direction.
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	return l2Normalize(vec)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
