package verify

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/rooftophq/rooftop/internal/domain"
)

const (
	// downscaleMaxDim bounds the longest edge of a downscaled image.
	downscaleMaxDim = 2048

	// downscaleJPEGQuality is the re-encode quality for downscaled images.
	downscaleJPEGQuality = 85
)

// prepareImage downscales oversized JPEG/PNG payloads before they go to the
// oracle, re-encoding as JPEG. WebP has no registered decoder here, so WebP
// payloads pass through untouched; the provider's own size cap still applies.
func (c *Client) prepareImage(img domain.ImagePayload) (domain.ImagePayload, error) {
	if len(img.Bytes) <= maxInlineImageBytes || img.MimeType == "image/webp" {
		return img, nil
	}

	decoded, err := imaging.Decode(bytes.NewReader(img.Bytes), imaging.AutoOrientation(true))
	if err != nil {
		return domain.ImagePayload{}, err
	}

	resized := imaging.Fit(decoded, downscaleMaxDim, downscaleMaxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(downscaleJPEGQuality)); err != nil {
		return domain.ImagePayload{}, err
	}

	c.logger.Debug("Downscaled oversized image",
		"original_bytes", len(img.Bytes),
		"resized_bytes", buf.Len(),
	)

	return domain.ImagePayload{
		Bytes:    buf.Bytes(),
		MimeType: "image/jpeg",
	}, nil
}
