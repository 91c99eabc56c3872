package fetch

import "bytes"

// ImageType names a recognized image format.
type ImageType string

const (
	ImageTypeUnknown ImageType = ""
	ImageTypeJPEG    ImageType = "jpg"
	ImageTypePNG     ImageType = "png"
	ImageTypeGIF     ImageType = "gif"
	ImageTypeWEBP    ImageType = "webp"
	ImageTypeBMP     ImageType = "bmp"
	ImageTypeTIFF    ImageType = "tif"
)

// DetectImageType sniffs the image format from magic bytes.
func DetectImageType(data []byte) ImageType {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return ImageTypeJPEG
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return ImageTypePNG
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return ImageTypeGIF
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return ImageTypeWEBP
	case len(data) >= 2 && bytes.Equal(data[:2], []byte("BM")):
		return ImageTypeBMP
	case len(data) >= 4 && (bytes.Equal(data[:4], []byte{'I', 'I', 0x2A, 0}) || bytes.Equal(data[:4], []byte{'M', 'M', 0, 0x2A})):
		return ImageTypeTIFF
	default:
		return ImageTypeUnknown
	}
}

// IsImage reports whether data looks like a supported image.
func IsImage(data []byte) bool {
	return DetectImageType(data) != ImageTypeUnknown
}

// IsAnimatedGIF reports whether data is a GIF with more than one frame.
// Animated sources are stored unmodified instead of being re-encoded.
func IsAnimatedGIF(data []byte) bool {
	if DetectImageType(data) != ImageTypeGIF {
		return false
	}

	// Count graphic control extension blocks (one per frame). Two or more
	// image descriptors make the GIF animated.
	frames := 0
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0x2C || (data[i] == 0x21 && data[i+1] == 0xF9) {
			if data[i] == 0x2C {
				frames++
				if frames > 1 {
					return true
				}
			}
		}
	}
	return false
}

// ImageExtensions lists the file extensions recognized as stored images.
var ImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
}
