package api

import (
	"github.com/starford/ntoes/internal/models"
	"github.com/starford/ntoes/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note. An empty title
// means today's date.
type CreateNoteRequest struct {
	Title string `json:"title" example:"2024-01-05 standup"`
}

// PathRequest names a note, absolute or relative to the base directory.
type PathRequest struct {
	Path string `json:"path" example:"2024/01 - January/2024-01-05 standup.md" validate:"required"`
}

// ToggleRequest selects the line to toggle (0-based).
type ToggleRequest struct {
	Path string `json:"path" example:"2024/01 - January/2024-01-05 standup.md" validate:"required"`
	Line *int   `json:"line" example:"2" validate:"required"`
}

// BaseDirRequest is the body of PUT /base-dir.
type BaseDirRequest struct {
	BaseDir string `json:"base_dir" example:"~/ntoes" validate:"required"`
}

// BaseDirResponse reports the note tree root.
type BaseDirResponse struct {
	BaseDir string `json:"base_dir" example:"/home/me/ntoes" validate:"required"`
}

// NoteDirResponse reports where a note with the given title lives.
type NoteDirResponse struct {
	Title string `json:"title" example:"2024-01-05 standup" validate:"required"`
	Dir   string `json:"dir" example:"/home/me/ntoes/2024/01 - January" validate:"required"`
}

// TodoResponse carries the aggregated view.
type TodoResponse struct {
	View string `json:"view" example:"# 2024-01-05 standup.md\n\n[ ] call Bob\n\n"`
}

// SyncResponse reports a sync cycle.
type SyncResponse struct {
	CommittedLocal bool     `json:"committed_local"`
	CommittedMerge bool     `json:"committed_merge"`
	Conflicts      bool     `json:"conflicts"`
	ConflictFiles  []string `json:"conflict_files,omitempty"`
	Pushed         bool     `json:"pushed"`
	LocalOnly      bool     `json:"local_only"`
	Output         string   `json:"output,omitempty"`
}

// SyncFailureResponse is returned when a step of the cycle failed.
type SyncFailureResponse struct {
	Error    string `json:"error" validate:"required"`
	FailedOp string `json:"failed_op,omitempty" example:"push"`
	Output   string `json:"output,omitempty"`
}

// SyncHistoryResponse wraps recorded sync runs, newest first.
type SyncHistoryResponse struct {
	Runs []models.SyncRun `json:"runs" validate:"required"`
}

// Note is the created-note response type (aliased from the domain layer).
type Note = noteservice.Note

// Toggled is the toggle response type (aliased from the domain layer).
type Toggled = noteservice.Toggled
