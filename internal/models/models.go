// Package models defines GORM data models for webmirror.
package models

import (
	"time"

	"gorm.io/gorm"
)

// ResourceKind classifies what a mirrored URL turned out to be.
type ResourceKind string

const (
	KindPage       ResourceKind = "page"
	KindStylesheet ResourceKind = "stylesheet"
	KindAsset      ResourceKind = "asset"
)

// ResourceStatus is the terminal state of a single fetch.
type ResourceStatus string

const (
	StatusDone    ResourceStatus = "done"
	StatusFailed  ResourceStatus = "failed"
	StatusSkipped ResourceStatus = "skipped"
)

// SnapshotStatus is the lifecycle state of a clone run.
type SnapshotStatus string

const (
	SnapshotRunning  SnapshotStatus = "running"
	SnapshotComplete SnapshotStatus = "complete"
	SnapshotFailed   SnapshotStatus = "failed"
)

// Snapshot represents one complete clone run of a site into an output tree.
// Counts are finalized when the run ends; while running they lag behind the
// Resource rows slightly because workers report asynchronously.
type Snapshot struct {
	gorm.Model

	BaseURL   string `gorm:"index;not null" json:"base_url"`
	OutputDir string `gorm:"not null" json:"output_dir"`

	Status     SnapshotStatus `gorm:"index;default:'running'" json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`

	Pages   int `json:"pages"`
	Assets  int `json:"assets"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Resource is one URL handled during a snapshot: a page, a stylesheet, or
// any other asset. LocalPath is relative to the snapshot's OutputDir.
type Resource struct {
	gorm.Model

	SnapshotID uint   `gorm:"index:idx_snapshot_url,unique;not null" json:"snapshot_id"`
	URL        string `gorm:"index:idx_snapshot_url,unique;not null" json:"url"`

	Kind        ResourceKind   `gorm:"index" json:"kind"`
	Status      ResourceStatus `gorm:"index" json:"status"`
	LocalPath   string         `json:"local_path"`
	ContentType string         `json:"content_type"`
	Bytes       int64          `json:"bytes"`
	Error       string         `json:"error,omitempty"`
	FetchedAt   time.Time      `json:"fetched_at"`
}

// BrokenLink is a verify finding: a reference inside a mirrored file that
// does not resolve to a file in the tree, or that would break under a
// subpath mount (absolute local ref).
type BrokenLink struct {
	gorm.Model

	SnapshotID uint   `gorm:"index" json:"snapshot_id"`
	SourcePath string `gorm:"index" json:"source_path"`
	Ref        string `json:"ref"`
	Reason     string `json:"reason"`
}

// SnapshotSummary is the DTO returned by the API and printed by `status`.
type SnapshotSummary struct {
	ID         uint           `json:"id"`
	BaseURL    string         `json:"base_url"`
	OutputDir  string         `json:"output_dir"`
	Status     SnapshotStatus `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Pages      int            `json:"pages"`
	Assets     int            `json:"assets"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Broken     int            `json:"broken_links"`
}
