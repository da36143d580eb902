package models

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Document is a single retrieval result from one lane. Identity is the
// content hash; Domain is extracted from URL at construction time.
type Document struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Domain      string            `json:"domain"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Snippet     string            `json:"snippet"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	Author      string            `json:"author,omitempty"`
	Score       float64           `json:"score"` // lane-local relevance score
	LaneID      LaneID            `json:"lane_id"`
	ContentHash string            `json:"content_hash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Normalize fills derived fields: Domain from URL and ContentHash from
// normalized content. Safe to call more than once.
func (d *Document) Normalize() {
	if d.Domain == "" {
		d.Domain = DomainOf(d.URL)
	}
	if d.ContentHash == "" {
		d.ContentHash = HashContent(d.Content)
	}
	if d.ID == "" {
		d.ID = d.ContentHash
	}
}

// DomainOf extracts the host from a URL, lowercased and with a leading
// "www." stripped. Returns "" for unparseable URLs.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// HashContent returns the MD5 hex digest of the whitespace-normalized,
// lowercased content. Used as document identity for exact dedup.
func HashContent(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LaneStatus is the terminal state of a lane execution.
type LaneStatus string

const (
	LaneSuccess   LaneStatus = "success"
	LaneTimeout   LaneStatus = "timeout"
	LaneError     LaneStatus = "error"
	LaneDisabled  LaneStatus = "disabled"
	LaneCancelled LaneStatus = "cancelled"
)

// LaneResult is produced exactly once per lane per query. On timeout,
// Documents holds whatever partial output the lane produced before its
// deadline fired.
type LaneResult struct {
	LaneID    LaneID        `json:"lane_id"`
	Status    LaneStatus    `json:"status"`
	Documents []Document    `json:"documents,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// ComponentScores breaks the fused score into its weighted parts.
type ComponentScores struct {
	RRF             float64 `json:"rrf"`
	DomainDiversity float64 `json:"domain_diversity"`
	Recency         float64 `json:"recency"`
	Authority       float64 `json:"authority"`
	Quality         float64 `json:"quality"`
	Length          float64 `json:"length"`
}

// FusedDocument is a document after cross-lane fusion, carrying its RRF
// score, component scores, and the set of lanes that contributed it.
type FusedDocument struct {
	Document   Document        `json:"document"`
	RRFScore   float64         `json:"rrf_score"`
	Components ComponentScores `json:"component_scores"`
	Lanes      []LaneID        `json:"contributing_lanes"` // sorted, unique
	TotalScore float64         `json:"total_score"`
}

// HasLane reports whether the given lane contributed this document.
func (f FusedDocument) HasLane(id LaneID) bool {
	for _, l := range f.Lanes {
		if l == id {
			return true
		}
	}
	return false
}
