package models

import "time"

// Paper is a single candidate research paper pulled from the arXiv feed.
type Paper struct {
	ArxivID    string    `json:"arxiv_id,omitempty"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	Abstract   string    `json:"abstract"`
	Published  time.Time `json:"published"`
	Categories []string  `json:"categories,omitempty"`
}

// Classification is the relevance verdict for one paper.
type Classification struct {
	Relevant bool   `json:"is_relevant"`
	Reason   string `json:"reason,omitempty"`
}

// StoredPaper is a paper row together with its latest verdict, if any.
type StoredPaper struct {
	ID int64 `json:"id"`
	Paper
	Classification *Classification `json:"classification,omitempty"`
	ModelUsed      string          `json:"model_used,omitempty"`
	FetchedAt      time.Time       `json:"fetched_at"`
}
