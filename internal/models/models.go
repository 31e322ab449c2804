// Package models holds the record types shared by the metadata store,
// the client factory and the actions layer.
package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// File type buckets used for browsing and usage aggregation.
const (
	TypeDocument = "document"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeOther    = "other"
)

// FileTypes lists every type bucket, in dashboard display order.
var FileTypes = []string{TypeDocument, TypeImage, TypeVideo, TypeAudio, TypeOther}

// User is a user record. It is created on first successful sign-up or
// OAuth sign-in and keyed to a backend account by AccountID.
type User struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

// File is a file record. BucketFileID references the blob in the
// storage backend; a record must never outlive its blob and vice versa.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Extension    string    `json:"extension"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	BucketFileID string    `json:"bucketFileId"`
	OwnerID      string    `json:"owner"`
	Users        []string  `json:"users"` // emails granted access
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListOptions narrows a file listing. The listing is always scoped to
// files owned by OwnerID or shared with Email.
type ListOptions struct {
	OwnerID string
	Email   string
	Types   []string
	Search  string
	Sort    string // "field-direction" token, e.g. "size-asc"
	Limit   int
}

// TypeUsage is the per-type slice of a usage summary.
type TypeUsage struct {
	Size       int64     `json:"size"`
	LatestDate time.Time `json:"latestDate"`
}

// Usage summarizes a user's storage consumption against the fixed
// per-user ceiling.
type Usage struct {
	ByType map[string]TypeUsage `json:"byType"`
	Used   int64                `json:"used"`
	All    int64                `json:"all"` // quota ceiling
}

// EmptyUsage returns a zero-valued summary with every type present, so
// dashboards render gracefully when no user resolves.
func EmptyUsage(ceiling int64) *Usage {
	byType := make(map[string]TypeUsage, len(FileTypes))
	for _, t := range FileTypes {
		byType[t] = TypeUsage{}
	}
	return &Usage{ByType: byType, All: ceiling}
}
