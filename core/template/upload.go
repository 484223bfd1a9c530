package template

import (
	"context"
	"fmt"
)

// MediaLimits are the maximum sizes of staged files, in bytes.
type MediaLimits struct {
	MaxImageBytes int64
	MaxAudioBytes int64
}

var DefaultMediaLimits = MediaLimits{
	MaxImageBytes: 5 << 20,
	MaxAudioBytes: 10 << 20,
}

var allowedMIMETypes = map[ContentType][]string{
	ContentImage: {"image/png", "image/jpeg"},
	ContentAudio: {"audio/mpeg"},
}

// Uploader sends a staged file to the asset service and returns its stable identifier (secure URL).
type Uploader interface {
	Upload(ctx context.Context, partTemplateID string, ct ContentType, pv *Preview) (string, error)
}

// CheckMedia rejects files the asset service would refuse, without touching the network.
func CheckMedia(ct ContentType, mimeType string, size int64, limits MediaLimits) error {
	allowed, ok := allowedMIMETypes[ct]
	if !ok {
		return &MediaError{Type: ct, Reason: "passage type does not take a file"}
	}

	var okType bool
	for _, mt := range allowed {
		if mt == mimeType {
			okType = true
			break
		}
	}
	if !okType {
		return &MediaError{Type: ct, Reason: fmt.Sprintf("unsupported file type %q", mimeType)}
	}

	max := limits.MaxImageBytes
	if ct == ContentAudio {
		max = limits.MaxAudioBytes
	}
	if max > 0 && size > max {
		return &MediaError{Type: ct, Reason: fmt.Sprintf("file is larger than %dMB", max>>20), TooLarge: true}
	}
	return nil
}
