package domain

import "time"

// ChunkMetadata is copied from the parent article at indexing time so search
// results can be rendered without a join.
type ChunkMetadata struct {
	Title      string
	Category   string
	Generation int64
	// Revision is the Article.Revision the chunk was built from.
	Revision   string
}

// Chunk is a bounded slice of an article's text together with its embedding.
// ChunkIndex is zero-based and stable for identical content.
type Chunk struct {
	ID         string
	ArticleID  string
	OrgID      string
	ChunkIndex int
	Text       string
	Embedding  []float32
	Metadata   ChunkMetadata
	CreatedAt  time.Time
}
