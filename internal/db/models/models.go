package models

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"` // admin, user
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UploadKind distinguishes user uploads from translated outputs
type UploadKind string

const (
	KindUpload UploadKind = "upload"
	KindOutput UploadKind = "output"
)

// Upload is a stored subtitle file. The content lives in storage under
// StorageKey; this row only carries metadata.
type Upload struct {
	ID           string     `json:"file_id"`
	Kind         UploadKind `json:"kind"`
	OriginalName string     `json:"original_name"`
	Format       string     `json:"format"`
	StorageKey   string     `json:"-"`
	Size         int64      `json:"size"`
	SourceID     string     `json:"source_file_id,omitempty"`
	Engine       string     `json:"engine,omitempty"`
	TargetLang   string     `json:"target_lang,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}
