package models

// RetrievedItem is one document returned by the retrieval store.
type RetrievedItem struct {
	DocID    string       `json:"doc_id"`
	Score    float64      `json:"score"`
	Content  string       `json:"content"`
	Metadata ItemMetadata `json:"metadata"`
}

// ItemMetadata carries the document attributes used for fusion dedup,
// category routing, and price-capped filtering.
type ItemMetadata struct {
	Category string  `json:"category"`
	Source   string  `json:"source"`
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
	Price    float64 `json:"price,omitempty"`
}
