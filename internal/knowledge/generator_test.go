package knowledge

import (
	"context"
	"fmt"
	"testing"

	"codeatlas/internal/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector per text and records batch sizes.
type fakeEmbedder struct {
	batches []int
	failOn  int // 1-based batch index to fail on; 0 means never
	short   bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, len(texts))
	if f.failOn > 0 && len(f.batches) == f.failOn {
		return nil, fmt.Errorf("quota exceeded")
	}
	n := len(texts)
	if f.short {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func testRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{ID: fmt.Sprintf("r%d", i), Content: "text"}
	}
	return records
}

func TestRender(t *testing.T) {
	node := &extractor.CodeNode{
		ID:        "src/auth.ts:login",
		Kind:      extractor.KindFunction,
		Name:      "login",
		Filepath:  "src/auth.ts",
		Content:   "function login(user, pass) {}",
		StartLine: 10,
		EndLine:   12,
		Params:    []string{"user", "pass"},
	}

	records := Render([]*extractor.CodeNode{node}, "myrepo", "abc123")
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "src/auth.ts:login", r.ID)
	assert.Equal(t, "myrepo", r.RepoName)
	assert.Equal(t, "abc123", r.CommitHash)
	assert.Equal(t, extractor.KindFunction, r.Kind)

	want := "Type: function\n" +
		"Name: login\n" +
		"File: src/auth.ts\n" +
		"Lines: 10-12\n" +
		"Parameters: user, pass\n" +
		"\nCode:\nfunction login(user, pass) {}"
	assert.Equal(t, want, r.Content)
}

func TestRender_TruncatesLongContent(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	node := &extractor.CodeNode{ID: "f:big", Kind: extractor.KindFunction, Name: "big", Content: string(long)}

	records := Render([]*extractor.CodeNode{node}, "r", "c")
	require.Len(t, records, 1)
	// Header plus at most the excerpt cap.
	assert.Less(t, len(records[0].Content), 2200)
}

func TestEmbed_Batches(t *testing.T) {
	fake := &fakeEmbedder{}
	g := NewGenerator(fake)

	records := testRecords(250)
	require.NoError(t, g.Embed(context.Background(), records))

	assert.Equal(t, []int{100, 100, 50}, fake.batches)
	for _, r := range records {
		assert.Equal(t, []float32{1, 0, 0}, r.Embedding)
	}
}

func TestEmbed_FailedBatchAborts(t *testing.T) {
	fake := &fakeEmbedder{failOn: 2}
	g := NewGenerator(fake)

	err := g.Embed(context.Background(), testRecords(150))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed batch 2")
}

func TestEmbed_CountMismatch(t *testing.T) {
	fake := &fakeEmbedder{short: true}
	g := NewGenerator(fake)

	err := g.Embed(context.Background(), testRecords(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding count mismatch")
}

func TestGenerate(t *testing.T) {
	node := &extractor.CodeNode{ID: "a.js:f", Kind: extractor.KindFunction, Name: "f", Filepath: "a.js", Content: "f"}
	g := NewGenerator(&fakeEmbedder{})

	records, err := g.Generate(context.Background(), []*extractor.CodeNode{node}, "repo", "commit")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float32{1, 0, 0}, records[0].Embedding)
}

func TestEstimateTokensAndCost(t *testing.T) {
	records := []Record{{Content: "aaaa"}, {Content: "bb"}}
	// 6 chars at ~4 chars/token rounds up to 2.
	tokens := EstimateTokens(records)
	assert.Equal(t, 2, tokens)

	assert.InDelta(t, 2.0/1_000_000*0.02, Cost(tokens), 1e-12)
	assert.Zero(t, EstimateTokens(nil))
}
