// Package audio identifies client audio chunks and summarizes the speaker's
// voice for the feedback model.
package audio

import (
	"bytes"
	"strconv"

	"github.com/dhowden/tag"
)

// Format describes how ffmpeg should read an audio payload.
type Format struct {
	Name string
	// Ext is the sidecar file extension.
	Ext string
	// Raw is true for headerless signed 16-bit little-endian PCM.
	Raw bool
}

var (
	FormatWebM = Format{Name: "webm", Ext: ".webm"}
	FormatWAV  = Format{Name: "wav", Ext: ".wav"}
	FormatOgg  = Format{Name: "ogg", Ext: ".ogg"}
	FormatMP3  = Format{Name: "mp3", Ext: ".mp3"}
	FormatM4A  = Format{Name: "m4a", Ext: ".m4a"}
	FormatFLAC = Format{Name: "flac", Ext: ".flac"}
	FormatPCM  = Format{Name: "s16le", Ext: ".pcm", Raw: true}
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Sniff identifies a payload from its leading bytes. Anything unrecognized
// is treated as raw PCM, which is what browser AudioWorklet capture sends.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, ebmlMagic):
		return FormatWebM
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOgg
	}

	// Tagged containers (ID3/MP4/FLAC) are recognized by their metadata header.
	_, fileType, err := tag.Identify(bytes.NewReader(data))
	if err == nil {
		switch fileType {
		case tag.MP3:
			return FormatMP3
		case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
			return FormatM4A
		case tag.FLAC:
			return FormatFLAC
		case tag.OGG:
			return FormatOgg
		}
	}
	return FormatPCM
}

// InputArgs returns the ffmpeg flags that read path in this format.
func (f Format) InputArgs(path string, sampleRate, channels int) []string {
	if f.Raw {
		return []string{
			"-f", "s16le",
			"-ar", strconv.Itoa(sampleRate),
			"-ac", strconv.Itoa(channels),
			"-i", path,
		}
	}
	return []string{"-i", path}
}
