package images

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	startQuality = 80
	qualityStep  = 10
	qualityFloor = 10
	widthStep    = 100
)

// ErrUnrecoverable is returned when no amount of re-encoding can bring
// the image under the size ceiling.
var ErrUnrecoverable = errors.New("image cannot be shrunk below size ceiling")

// Shrink re-encodes an oversized image until it fits within ceiling
// bytes. Quality is stepped down first at the original width; once
// quality bottoms out, width is stepped down instead with quality held
// at the floor. The output is always JPEG. Pure function, no I/O.
func Shrink(data []byte, ceiling int) ([]byte, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("invalid size ceiling %d", ceiling)
	}
	if len(data) <= ceiling {
		return data, nil
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	quality := startQuality
	width := src.Bounds().Dx()
	frame := src

	for {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		if buf.Len() <= ceiling {
			return buf.Bytes(), nil
		}

		if quality > qualityFloor {
			quality -= qualityStep
			if quality < qualityFloor {
				quality = qualityFloor
			}
			continue
		}

		width -= widthStep
		if width <= 0 {
			return nil, ErrUnrecoverable
		}
		// Resize from the source image to avoid compounding artifacts
		frame = imaging.Resize(src, width, 0, imaging.Lanczos)
	}
}
