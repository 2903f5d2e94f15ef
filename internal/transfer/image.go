package transfer

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	// Images below this size are left alone
	recompressMinSize = 1536 << 10

	jpegQuality = 80
)

// maybeRecompress re-encodes a large JPEG or PNG to JPEG and keeps whichever
// result is smaller. Failures are logged and the original file is kept.
func (e *Engine) maybeRecompress(path string, size int64) (string, int64) {
	ext := strings.ToLower(filepath.Ext(path))
	if size < recompressMinSize {
		return path, size
	}
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return path, size
	}

	fs := e.store.Fs()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return path, size
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		e.log.DebugWithFields("image decode failed, keeping original", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return path, size
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return path, size
	}
	if int64(buf.Len()) >= size {
		return path, size
	}

	newPath := path
	if format == "png" {
		newPath = strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	}
	if _, err := e.store.SaveFile(bytes.NewReader(buf.Bytes()), newPath); err != nil {
		return path, size
	}
	if newPath != path {
		fs.Remove(path)
	}

	e.log.DebugWithFields("recompressed image", map[string]interface{}{
		"path":     newPath,
		"original": size,
		"reduced":  buf.Len(),
	})
	return newPath, int64(buf.Len())
}
