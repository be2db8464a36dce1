package client

import (
	"strings"

	"github.com/wizardin/chat-server/models"
)

// PreviewKind selects how a file message is presented.
type PreviewKind int

const (
	// PreviewInlineImage renders the data URL directly as an image.
	PreviewInlineImage PreviewKind = iota
	// PreviewDownload renders a generic download link with a type icon.
	PreviewDownload
)

// Preview is the rendering strategy chosen for a file payload.
type Preview struct {
	Kind PreviewKind
	Icon string // icon class for the download presentation
}

// PreviewFor picks a presentation for a file by its MIME type: images inline,
// everything else as a download link with a best-effort icon.
func PreviewFor(file models.FilePayload) Preview {
	if strings.HasPrefix(file.Type, "image/") {
		return Preview{Kind: PreviewInlineImage, Icon: "fas fa-image"}
	}
	return Preview{Kind: PreviewDownload, Icon: fileIcon(file.Type)}
}

func fileIcon(fileType string) string {
	switch {
	case strings.HasPrefix(fileType, "image/"):
		return "fas fa-image"
	case strings.HasPrefix(fileType, "video/"):
		return "fas fa-video"
	case strings.HasPrefix(fileType, "audio/"):
		return "fas fa-music"
	case strings.Contains(fileType, "pdf"):
		return "fas fa-file-pdf"
	case strings.Contains(fileType, "word"), strings.Contains(fileType, "document"):
		return "fas fa-file-word"
	case strings.Contains(fileType, "text"):
		return "fas fa-file-alt"
	default:
		return "fas fa-file"
	}
}
