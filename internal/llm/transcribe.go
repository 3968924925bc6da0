package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
)

// audioExtensions maps every accepted mime type to the upload file name
// extension the transcription endpoint sniffs.
var audioExtensions = map[string]string{
	"audio/ogg":   "ogg",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/mp4":   "m4a",
	"audio/m4a":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/webm":  "webm",
	"audio/flac":  "flac",
	"audio/aac":   "aac",
}

// AudioTranscriber is satisfied by Provider.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Transcriber validates base64 voice notes before handing them to the model.
type Transcriber struct {
	audio AudioTranscriber
}

func NewTranscriber(audio AudioTranscriber) *Transcriber {
	return &Transcriber{audio: audio}
}

// SupportedAudioType normalises mimeType and reports whether it is accepted.
func SupportedAudioType(mimeType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)
	_, ok := audioExtensions[mediaType]
	return mediaType, ok
}

// TranscribeBase64Audio rejects unsupported types and bad payloads with
// ErrValidation before any credential lookup or network call.
func (t *Transcriber) TranscribeBase64Audio(ctx context.Context, b64, mimeType string) (string, error) {
	mediaType, ok := SupportedAudioType(mimeType)
	if !ok {
		return "", fmt.Errorf("%w: unsupported audio type %q", apperrors.ErrValidation, mimeType)
	}
	if strings.TrimSpace(b64) == "" {
		return "", fmt.Errorf("%w: empty audio payload", apperrors.ErrValidation)
	}
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len(";base64,"):]
	}
	audio, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return "", fmt.Errorf("%w: audio is not valid base64: %v", apperrors.ErrValidation, err)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio payload", apperrors.ErrValidation)
	}
	return t.audio.Transcribe(ctx, audio, "voice."+audioExtensions[mediaType])
}
