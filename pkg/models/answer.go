package models

import "time"

// Citation links an inline marker to the document passage that supports it.
// Marker IDs are 1-indexed by first occurrence in reading order; reusing a
// document later in the answer reuses its original marker.
type Citation struct {
	MarkerID   int     `json:"marker_id"`
	DocumentID string  `json:"document_ref"` // content hash of the cited document
	Passage    string  `json:"passage"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
}

// AnswerSentence is one sentence of the synthesized answer with its
// citation markers. NoSource is set only when the orchestrator had no
// retrieval output to align against.
type AnswerSentence struct {
	Text       string  `json:"text"`
	Citations  []int   `json:"citations,omitempty"` // marker IDs, ordered
	Confidence float64 `json:"confidence"`
	NoSource   bool    `json:"no_source,omitempty"`
}

// BibliographyEntry is one entry of the ordered bibliography. Order equals
// first-appearance order of the marker in the answer.
type BibliographyEntry struct {
	MarkerID    int        `json:"marker_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Domain      string     `json:"domain"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Author      string     `json:"author,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
}

// DisagreementSeverity grades how strongly cited passages contradict.
type DisagreementSeverity string

const (
	SeverityLow    DisagreementSeverity = "low"
	SeverityMedium DisagreementSeverity = "medium"
	SeverityHigh   DisagreementSeverity = "high"
)

// Disagreement records two or more cited passages whose claims contradict
// on a shared topic.
type Disagreement struct {
	Topic    string               `json:"topic"`
	Markers  []int                `json:"conflicting_citations"` // ≥ 2 marker IDs
	Severity DisagreementSeverity `json:"severity"`
}
