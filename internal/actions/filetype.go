package actions

import (
	"path/filepath"
	"strings"

	"github.com/storeit/storeit/internal/models"
)

var extensionTypes = map[string]string{
	// documents
	"pdf": models.TypeDocument, "doc": models.TypeDocument, "docx": models.TypeDocument,
	"txt": models.TypeDocument, "xls": models.TypeDocument, "xlsx": models.TypeDocument,
	"csv": models.TypeDocument, "rtf": models.TypeDocument, "ods": models.TypeDocument,
	"ppt": models.TypeDocument, "odp": models.TypeDocument, "md": models.TypeDocument,
	"html": models.TypeDocument, "htm": models.TypeDocument, "epub": models.TypeDocument,
	"pages": models.TypeDocument, "fig": models.TypeDocument, "psd": models.TypeDocument,
	"ai": models.TypeDocument, "indd": models.TypeDocument, "xd": models.TypeDocument,
	"sketch": models.TypeDocument, "afdesign": models.TypeDocument, "afphoto": models.TypeDocument,

	// images
	"jpg": models.TypeImage, "jpeg": models.TypeImage, "png": models.TypeImage,
	"gif": models.TypeImage, "bmp": models.TypeImage, "svg": models.TypeImage,
	"webp": models.TypeImage,

	// video
	"mp4": models.TypeVideo, "avi": models.TypeVideo, "mov": models.TypeVideo,
	"mkv": models.TypeVideo, "webm": models.TypeVideo,

	// audio
	"mp3": models.TypeAudio, "wav": models.TypeAudio, "ogg": models.TypeAudio,
	"flac": models.TypeAudio,
}

// fileTypeFromName derives the coarse file type and extension from a
// file name. Extensionless names and unknown extensions are "other".
func fileTypeFromName(name string) (fileType, extension string) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return models.TypeOther, ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t, ext
	}
	return models.TypeOther, ext
}
