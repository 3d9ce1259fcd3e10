// Package models defines the domain types for ntoes.
package models

import "time"

// Item is one outstanding TODO line inside a note file.
type Item struct {
	Line int    `json:"line"` // 0-based line index
	Text string `json:"text"`
}

// NoteFile is the tracked state of a single note on disk.
//
// Items always reflects the file content as of LastModified; a rescan
// replaces the slice wholesale.
type NoteFile struct {
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
	Items        []Item    `json:"items"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path    string    `json:"path"` // absolute
	ModTime time.Time `json:"mod_time"`
}

// SyncRun is one recorded attempt of the sync cycle.
type SyncRun struct {
	ID             int64     `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	CommittedLocal bool      `json:"committed_local"`
	CommittedMerge bool      `json:"committed_merge"`
	Conflicts      bool      `json:"conflicts"`
	Pushed         bool      `json:"pushed"`
	OK             bool      `json:"ok"`
	FailedOp       string    `json:"failed_op,omitempty"`
	Output         string    `json:"output,omitempty"`
}

// ScanRun summarises one rescan of the note tree.
type ScanRun struct {
	ID        int64     `json:"id"`
	At        time.Time `json:"at"`
	Files     int       `json:"files"`
	Rescanned int       `json:"rescanned"`
	Removed   int       `json:"removed"`
	Skipped   int       `json:"skipped"`
	Items     int       `json:"items"`
}
