package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testRaw(t *testing.T, w, h int) Raw {
	return Raw{Bytes: testPNG(t, w, h), Width: w, Height: h, CapturedAt: time.Unix(1700000000, 0)}
}

func decodedSize(t *testing.T, e EncodedImage) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(e.Bytes))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestBuildDerivativesGeometry(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		opts       Options
		wantFull   [2]int
		wantSmall  [2]int
		wantThumb  [2]int
	}{
		{
			name: "native size",
			srcW: 1280, srcH: 720,
			opts:      Options{Quality: 80, ThumbnailMaxDim: 300},
			wantFull:  [2]int{1280, 720},
			wantSmall: [2]int{640, 360},
			wantThumb: [2]int{300, 169},
		},
		{
			name: "width only keeps aspect",
			srcW: 1280, srcH: 2000,
			opts:      Options{Width: 800, Quality: 80, ThumbnailMaxDim: 300},
			wantFull:  [2]int{800, 1250},
			wantSmall: [2]int{400, 625},
			wantThumb: [2]int{192, 300},
		},
		{
			name: "exact resize",
			srcW: 400, srcH: 300,
			opts:      Options{Width: 200, Height: 200, Quality: 50, ThumbnailMaxDim: 64, Format: PNG},
			wantFull:  [2]int{200, 200},
			wantSmall: [2]int{100, 100},
			wantThumb: [2]int{64, 64},
		},
		{
			name: "thumbnail never upscales",
			srcW: 120, srcH: 80,
			opts:      Options{Quality: 80, ThumbnailMaxDim: 300},
			wantFull:  [2]int{120, 80},
			wantSmall: [2]int{60, 40},
			wantThumb: [2]int{120, 80},
		},
		{
			name: "tiny source keeps one pixel small",
			srcW: 1, srcH: 1,
			opts:      Options{Quality: 80, ThumbnailMaxDim: 1},
			wantFull:  [2]int{1, 1},
			wantSmall: [2]int{1, 1},
			wantThumb: [2]int{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := BuildDerivatives(testRaw(t, tt.srcW, tt.srcH), tt.opts)
			require.NoError(t, err)

			for _, c := range []struct {
				img  EncodedImage
				want [2]int
			}{{set.Full, tt.wantFull}, {set.Small, tt.wantSmall}, {set.Thumbnail, tt.wantThumb}} {
				assert.Equal(t, c.want[0], c.img.Width)
				assert.Equal(t, c.want[1], c.img.Height)
				w, h := decodedSize(t, c.img)
				assert.Equal(t, c.want, [2]int{w, h}, "encoded bytes must match declared size")
			}

			assert.LessOrEqual(t, set.Small.Width, set.Full.Width)
			assert.LessOrEqual(t, max(set.Thumbnail.Width, set.Thumbnail.Height), tt.opts.ThumbnailMaxDim)
		})
	}
}

func TestBuildDerivativesIsDeterministic(t *testing.T) {
	for _, f := range []Format{JPEG, PNG} {
		t.Run(string(f), func(t *testing.T) {
			raw := testRaw(t, 320, 240)
			opts := Options{Width: 200, Quality: 70, ThumbnailMaxDim: 50, Format: f}

			a, err := BuildDerivatives(raw, opts)
			require.NoError(t, err)
			b, err := BuildDerivatives(raw, opts)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestBuildDerivativesEmptyCapture(t *testing.T) {
	src := testPNG(t, 10, 10)
	for name, raw := range map[string]Raw{
		"zero width":  {Bytes: src, Width: 0, Height: 10},
		"zero height": {Bytes: src, Width: 10, Height: 0},
		"no bytes":    {Width: 10, Height: 10},
	} {
		t.Run(name, func(t *testing.T) {
			set, err := BuildDerivatives(raw, Options{Quality: 80, ThumbnailMaxDim: 100})
			assert.Nil(t, set)
			assert.True(t, IsKind(err, EmptyCapture), "got %v", err)
		})
	}
}

func TestBuildDerivativesDecodeFailed(t *testing.T) {
	set, err := BuildDerivatives(Raw{Bytes: []byte("not an image"), Width: 10, Height: 10}, Options{})
	assert.Nil(t, set)
	assert.True(t, IsKind(err, DecodeFailed))
}

func TestBuildDerivativesClampsQuality(t *testing.T) {
	raw := testRaw(t, 64, 64)
	low, err := BuildDerivatives(raw, Options{Quality: -5, ThumbnailMaxDim: 32})
	require.NoError(t, err)
	one, err := BuildDerivatives(raw, Options{Quality: 1, ThumbnailMaxDim: 32})
	require.NoError(t, err)
	assert.Equal(t, one.Full.Bytes, low.Full.Bytes)
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	_, err := Encode(image.NewRGBA(image.Rect(0, 0, 1, 1)), WEBP, 80)
	assert.True(t, IsKind(err, EncodeFailed))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": JPEG, "JPG": JPEG, "jpeg": JPEG, "png": PNG} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"webp", "bmp"} {
		_, err := ParseFormat(in)
		assert.Error(t, err)
	}
}

func TestEncodeGIF(t *testing.T) {
	start := time.Unix(1700000000, 0)
	var frames []Frame
	for i := 0; i < 3; i++ {
		frames = append(frames, Frame{Data: testPNG(t, 200, 100), Timestamp: start.Add(time.Duration(i) * 200 * time.Millisecond)})
	}

	data, err := EncodeGIF(frames, 100)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "gif", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	assert.Equal(t, 20, frameDelay(frames, 0))
	assert.Equal(t, 10, frameDelay(frames, 2))

	_, err = EncodeGIF(nil, 100)
	assert.True(t, IsKind(err, EmptyCapture))
}
