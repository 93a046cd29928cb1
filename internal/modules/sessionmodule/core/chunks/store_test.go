package chunks

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
)

func encodedPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func encodedJPEG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestStore(t *testing.T) *Store {
	return NewStore("s1", filepath.Join(t.TempDir(), "s1_combined.webm"), hclog.NewNullLogger())
}

func TestDecodePayload(t *testing.T) {
	raw := []byte("hello world")
	std := base64.StdEncoding.EncodeToString(raw)
	unpadded := base64.RawStdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"plain", std, raw, false},
		{"data url", "data:image/jpeg;base64," + std, raw, false},
		{"unpadded", unpadded, raw, false},
		{"whitespace", "  " + std + "\n", raw, false},
		{"empty", "", nil, true},
		{"only header", "data:audio/webm;base64,", nil, true},
		{"garbage", "!!!not base64!!!", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, sErrors.ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppendFrameFormats(t *testing.T) {
	s := newTestStore(t)

	var webpBuf bytes.Buffer
	require.NoError(t, webp.Encode(&webpBuf, image.NewRGBA(image.Rect(0, 0, 4, 4)), &webp.Options{Lossless: true}))

	inputs := []string{
		encodedPNG(t, 4, 3),
		"data:image/jpeg;base64," + encodedJPEG(t),
		base64.StdEncoding.EncodeToString(webpBuf.Bytes()),
	}
	for _, in := range inputs {
		_, ok := s.AppendFrame(in)
		assert.True(t, ok)
	}

	assert.Equal(t, 3, s.FrameCount())
	assert.Equal(t, 4, s.Frames()[0].Image.Bounds().Dx())
	assert.Greater(t, s.Frames()[0].EncodedSize, 0)
}

func TestAppendFrameDropsUndecodable(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.AppendFrame("%%%")
	assert.False(t, ok)
	_, ok = s.AppendFrame(base64.StdEncoding.EncodeToString([]byte("not an image")))
	assert.False(t, ok)

	assert.Zero(t, s.FrameCount())
	assert.Equal(t, 2, s.Dropped())
	assert.Empty(t, s.Frames())
}

func TestAppendAudio(t *testing.T) {
	s := newTestStore(t)

	data, ok := s.AppendAudio(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, ok = s.AppendAudio("@@")
	assert.False(t, ok)

	assert.Equal(t, 1, s.AudioCount())
	assert.Zero(t, s.FrameCount())
	assert.False(t, s.HasConsolidated())
}

func TestSetConsolidatedBlob(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetConsolidatedBlob("data:video/webm;base64,"+base64.StdEncoding.EncodeToString([]byte("webm"))))
	assert.True(t, s.HasConsolidated())

	data, err := os.ReadFile(s.ConsolidatedPath())
	require.NoError(t, err)
	assert.Equal(t, []byte("webm"), data)
}

func TestSetConsolidatedBlobFailureClearsFlag(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetConsolidatedBlob(base64.StdEncoding.EncodeToString([]byte("first"))))

	err := s.SetConsolidatedBlob("***")
	require.Error(t, err)
	assert.Equal(t, sErrors.ErrorTypeDecode, sErrors.GetType(err))
	assert.False(t, sErrors.IsFatal(err))
	assert.False(t, s.HasConsolidated())
}

func TestSetConsolidatedBlobWriteFailure(t *testing.T) {
	s := NewStore("s1", filepath.Join(t.TempDir(), "missing-dir", "blob.webm"), nil)

	err := s.SetConsolidatedBlob(base64.StdEncoding.EncodeToString([]byte("webm")))
	require.Error(t, err)
	assert.Equal(t, sErrors.ErrorTypeStorage, sErrors.GetType(err))
	assert.False(t, s.HasConsolidated())
}
