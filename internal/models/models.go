package models

import "time"

// FileStatus is the lifecycle state of an uploaded file.
type FileStatus string

const (
	StatusPending    FileStatus = "pending"
	StatusProcessing FileStatus = "processing" // reserved, not set by any current flow
	StatusCompleted  FileStatus = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s FileStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// User is the identity anchor. Users are created on first sign-in
// (upsert by email) and never deleted.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// Files is the denormalized index of owned file ids. File.UserID is
	// the source of truth; this list is rebuildable from it.
	Files []string `json:"files,omitempty"`
}

// File is one uploaded document. UserID, URL and Filename are immutable
// after creation; only Status changes, and only forward
// (pending -> processing -> completed).
type File struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	URL        string     `json:"url"`
	Filename   string     `json:"filename"`
	FileType   string     `json:"fileType"`
	UploadDate time.Time  `json:"uploadDate"`
	Status     FileStatus `json:"status"`
}

// StagedFile is one entry of a staging listing: the file record plus,
// when staging succeeded, the local URL of its staged copy. Err carries
// the per-file staging failure; it is never escalated to the batch.
type StagedFile struct {
	File     *File
	LocalURL string
	Err      error
}
