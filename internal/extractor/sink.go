package extractor

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// FrameName returns the file name of the index-th frame sampled from a video
func FrameName(videoName string, index int) string {
	return fmt.Sprintf("%s-%05d.png", videoName, index)
}

// ErrSinkClosed is returned by Save after Close
var ErrSinkClosed = errors.New("image sink is closed")

// A single-slot png.EncoderBufferPool; a sink encodes one frame at a time.
type encoderBuffer struct {
	buf *png.EncoderBuffer
}

func (e *encoderBuffer) Get() *png.EncoderBuffer  { return e.buf }
func (e *encoderBuffer) Put(b *png.EncoderBuffer) { e.buf = b }

// ImageSink writes numbered PNG frames for one video into a directory. The
// write buffer and encoder state are reused across frames until Close.
type ImageSink struct {
	dir       string
	videoName string
	index     int
	writer    *bufio.Writer
	buffers   *encoderBuffer
	encoder   png.Encoder
}

// NewImageSink creates the target directory if needed
func NewImageSink(dir, videoName string) (*ImageSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory '%s': %v", dir, err)
	}
	buffers := &encoderBuffer{}
	return &ImageSink{
		dir:       dir,
		videoName: videoName,
		writer:    bufio.NewWriterSize(nil, 64*1024),
		buffers:   buffers,
		encoder:   png.Encoder{CompressionLevel: png.BestSpeed, BufferPool: buffers},
	}, nil
}

// Save writes img as the next numbered frame and returns its path
func (s *ImageSink) Save(img image.Image) (string, error) {
	if s.writer == nil {
		return "", fmt.Errorf("%w: '%s'", ErrSinkClosed, s.videoName)
	}

	path := filepath.Join(s.dir, FrameName(s.videoName, s.index))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	s.writer.Reset(f)
	if err := s.encoder.Encode(s.writer, img); err != nil {
		return "", fmt.Errorf("failed to encode '%s': %w", path, err)
	}
	if err := s.writer.Flush(); err != nil {
		return "", err
	}
	s.writer.Reset(nil)
	if err := f.Close(); err != nil {
		return "", err
	}

	s.index++
	return path, nil
}

// Count is the number of frames saved so far
func (s *ImageSink) Count() int {
	return s.index
}

// Close releases the reused buffers. Further saves fail with ErrSinkClosed.
func (s *ImageSink) Close() error {
	s.writer = nil
	s.buffers.buf = nil
	return nil
}
