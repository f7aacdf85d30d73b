// Package search ranks an archive's stored chunk embeddings against a query
// embedding by cosine similarity. It never touches the archive's encrypted
// payloads or compressed bytes — only the embedding vectors already present
// in parsed Metadata — so it works directly off the result of
// Reader.ReadMetadata.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kenchrcum/moonball/internal/archive"
	"github.com/kenchrcum/moonball/internal/archiveerr"
	"github.com/kenchrcum/moonball/internal/embed"
)

// Result is one ranked chunk match.
type Result struct {
	FileName string
	ChunkID  int
	Score    float64
}

// Search embeds queryText, ranks archive's chunks by descending cosine
// similarity against the query embedding, truncates at k, and drops any
// result below threshold. It returns ErrEmbeddingsAbsent when the archive
// carries no embeddings at all (EmbeddingDim == 0).
func Search(ctx context.Context, meta *archive.Metadata, embedder *embed.Client, queryText string, k int, threshold float64) ([]Result, error) {
	if meta.EmbeddingDim == 0 {
		return nil, archiveerr.ErrEmbeddingsAbsent
	}
	if k <= 0 {
		return nil, nil
	}

	query, err := embedder.Embed(ctx, []byte(queryText))
	if err != nil {
		return nil, err
	}
	if len(query) != meta.EmbeddingDim {
		return nil, fmt.Errorf("search: %w: query embedding dim %d, archive dim %d", archiveerr.ErrEmbeddingsAbsent, len(query), meta.EmbeddingDim)
	}

	results := make([]Result, 0, len(meta.Chunks))
	for _, c := range meta.Chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(query, c.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, Result{FileName: c.FileName, ChunkID: c.ChunkID, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// cosineSimilarity returns dot(a,b) / (|a| * |b|), 0 when either vector has
// zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		magA += av * av
		magB += bv * bv
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
