package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"iter"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
)

// CheckDeps verifies that ffmpeg and ffprobe can be found
func CheckDeps() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	return nil
}

// FrameSource produces the sampled frames of a video. The sequence is lazy,
// finite and can only be ranged over once.
type FrameSource interface {
	Frames(ctx context.Context, videoPath string, stride int) iter.Seq2[image.Image, error]
}

// FFmpegSource decodes videos by streaming raw rgb24 frames out of ffmpeg.
type FFmpegSource struct{}

func (FFmpegSource) Frames(ctx context.Context, videoPath string, stride int) iter.Seq2[image.Image, error] {
	return func(yield func(image.Image, error) bool) {
		info, err := Probe(ctx, videoPath)
		if err != nil {
			yield(nil, err)
			return
		}

		cmd := exec.CommandContext(ctx, "ffmpeg", decodeArgs(videoPath, SyncFlag())...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(nil, err)
			return
		}
		if err := cmd.Start(); err != nil {
			yield(nil, fmt.Errorf("failed to start ffmpeg: %w", err))
			return
		}

		for img, err := range SampleFrames(stdout, info.Width, info.Height, stride) {
			if err != nil {
				cmd.Process.Kill()
				cmd.Wait()
				yield(nil, err)
				return
			}
			if !yield(img, nil) {
				cmd.Process.Kill()
				cmd.Wait()
				return
			}
		}

		if err := cmd.Wait(); err != nil {
			yield(nil, fmt.Errorf("ffmpeg failed: %w (%s)", err, strings.TrimSpace(stderr.String())))
		}
	}
}

var (
	syncOnce sync.Once
	syncFlag = "-vsync"
)

// SyncFlag is the option controlling frame rate conversion on the installed
// ffmpeg. -fps_mode replaced -vsync in ffmpeg 5.1.
func SyncFlag() string {
	syncOnce.Do(func() {
		out, err := exec.Command("ffmpeg", "-hide_banner", "-h", "full").Output()
		if err == nil && bytes.Contains(out, []byte("-fps_mode")) {
			syncFlag = "-fps_mode"
		}
	})
	return syncFlag
}

// decodeArgs streams the first video stream as rgb24 frames on stdout. The
// rawvideo muxer would otherwise force a constant frame rate, duplicating or
// dropping frames of variable frame rate input.
func decodeArgs(videoPath, syncFlag string) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		"-i", videoPath,
		"-map", "0:v:0",
		syncFlag, "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

// SampleFrames reads consecutive width x height rgb24 frames from r and yields
// frames 0, stride, 2*stride, ... until r is exhausted.
func SampleFrames(r io.Reader, width, height, stride int) iter.Seq2[image.Image, error] {
	return func(yield func(image.Image, error) bool) {
		if width <= 0 || height <= 0 {
			yield(nil, fmt.Errorf("invalid frame size %dx%d", width, height))
			return
		}
		if stride <= 0 {
			yield(nil, fmt.Errorf("frame stride must be positive, got %d", stride))
			return
		}

		buf := make([]byte, width*height*3)
		for index := 0; ; index++ {
			_, err := io.ReadFull(r, buf)
			if err == io.EOF {
				return
			}
			if err == io.ErrUnexpectedEOF {
				yield(nil, fmt.Errorf("truncated frame %d", index))
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if index%stride != 0 {
				continue
			}
			if !yield(rgbToImage(buf, width, height), nil) {
				return
			}
		}
	}
}

func rgbToImage(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// VideoInfo is the subset of ffprobe output needed to size raw frames.
type VideoInfo struct {
	Width    int
	Height   int
	Rotation int
}

// Probe runs ffprobe against the first video stream of path
func Probe(ctx context.Context, path string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "v:0",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe '%s': %w", path, err)
	}
	return ParseProbe(out)
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		Rotation int `json:"rotation"`
	} `json:"side_data_list"`
}

// ParseProbe converts ffprobe JSON into a VideoInfo. ffmpeg autorotates its
// output, so a quarter-turn rotation swaps the reported dimensions.
func ParseProbe(data []byte) (*VideoInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	if len(raw.Streams) == 0 {
		return nil, fmt.Errorf("no video stream found")
	}
	s := raw.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("video stream has no dimensions")
	}

	rotation := 0
	if r, err := strconv.Atoi(s.Tags["rotate"]); err == nil {
		rotation = r
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
		}
	}

	info := &VideoInfo{Width: s.Width, Height: s.Height, Rotation: rotation}
	if (rotation%180+180)%180 == 90 {
		info.Width, info.Height = s.Height, s.Width
	}
	return info, nil
}
