package sound

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Formats recognised by sniffFormat.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
	FormatOGG  = "ogg"
	FormatAIFF = "aiff"
	FormatPCM  = "pcm"
)

// SupportedFormats lists the decodable file formats
var SupportedFormats = []string{FormatMP3, FormatWAV, FormatFLAC, FormatOGG, FormatAIFF}

const sniffLen = 12

// sniffFormat detects the container from the first bytes of r. It returns
// the detected format, or a best-effort description of what was found when
// the content is not decodable, and whether the format is supported.
func sniffFormat(r io.Reader, path string) (string, bool) {
	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(r, head)
	head = head[:n]

	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV, true
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("FORM")) &&
		(bytes.Equal(head[8:12], []byte("AIFF")) || bytes.Equal(head[8:12], []byte("AIFC"))):
		return FormatAIFF, true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC, true
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG, true
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3, true
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3, true
	}

	return describeUnknown(head, path), false
}

// describeUnknown names unsupported content for error details
func describeUnknown(head []byte, path string) string {
	switch {
	case len(head) == 0:
		return "empty"
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")):
		return "riff/" + strings.ToLower(strings.TrimSpace(string(head[8:12])))
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return "mp4"
	case bytes.HasPrefix(head, []byte("MThd")):
		return "midi"
	case bytes.HasPrefix(head, []byte("%PDF")):
		return "pdf"
	case bytes.HasPrefix(head, []byte{0x89, 'P', 'N', 'G'}):
		return "png"
	case isText(head):
		return "text"
	}

	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		return "unknown (." + ext + ")"
	}
	return "unknown"
}

func isText(head []byte) bool {
	for _, b := range head {
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}
