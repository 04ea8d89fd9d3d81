package api

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the relational model for an account
type User struct {
	ID             string `gorm:"primaryKey;size:36"`
	Email          string `gorm:"uniqueIndex;size:255;not null"`
	HashedPassword string `gorm:"size:255;not null"`
	FullName       string `gorm:"size:255"`
	IsActive       bool   `gorm:"default:true"`
	IsSuperuser    bool   `gorm:"default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName overrides the GORM table name for User
func (User) TableName() string { return "users" }

// BeforeCreate assigns a UUID primary key if one was not provided
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// File is the relational model for an uploaded document. Binary content
// lives in object storage under S3Key; EditorContent holds the HTML the
// browser editor works with.
type File struct {
	ID             string `gorm:"primaryKey;size:36"`
	Filename       string `gorm:"size:255;index;not null"`
	S3Key          string `gorm:"size:500"`
	FileSize       int64
	MimeType       string `gorm:"size:100"`
	OriginalFormat string `gorm:"size:20"`
	EditorContent  string `gorm:"type:text"`
	OwnerID        string `gorm:"size:36;index;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName overrides the GORM table name for File
func (File) TableName() string { return "files" }

// BeforeCreate assigns a UUID primary key if one was not provided
func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// UserPublic is the JSON shape exposed for a user
type UserPublic struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Public converts a User to its API representation
func (u *User) Public() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		IsSuperuser: u.IsSuperuser,
	}
}

// FilePublic is the JSON shape exposed for a file
type FilePublic struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	S3Key          string    `json:"s3_key,omitempty"`
	FileSize       int64     `json:"file_size"`
	MimeType       string    `json:"mime_type,omitempty"`
	OriginalFormat string    `json:"original_format,omitempty"`
	EditorContent  string    `json:"quill_content,omitempty"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Public converts a File to its API representation
func (f *File) Public() FilePublic {
	return FilePublic{
		ID:             f.ID,
		Filename:       f.Filename,
		S3Key:          f.S3Key,
		FileSize:       f.FileSize,
		MimeType:       f.MimeType,
		OriginalFormat: f.OriginalFormat,
		EditorContent:  f.EditorContent,
		OwnerID:        f.OwnerID,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}
