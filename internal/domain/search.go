package domain

// SearchResult is one ranked chunk returned for a query.
type SearchResult struct {
	ChunkText    string  `json:"chunk_text"`
	ArticleTitle string  `json:"article_title"`
	ArticleID    string  `json:"article_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Similarity   float64 `json:"similarity"`
}

// Answer is a grounded response built from search results.
type Answer struct {
	Text            string   `json:"text"`
	CitedArticleIDs []string `json:"cited_article_ids"`
	UsedFallback    bool     `json:"used_fallback"`
}
