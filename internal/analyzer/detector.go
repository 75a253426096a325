package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdougie/autodataset/internal/models"
	"github.com/bdougie/autodataset/internal/ontology"
)

// ErrMalformedReply is returned when the model answers without a usable
// JSON detection list.
var ErrMalformedReply = errors.New("malformed model reply")

// Detector finds ontology objects in a single image
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]models.Detection, error)
}

// Asker is the vision model seen by AgentDetector
type Asker interface {
	Ask(ctx context.Context, prompt, imagePath string) (string, error)
}

// AgentDetector asks a vision model for bounding boxes of every ontology
// prompt and maps the answers onto ontology classes.
type AgentDetector struct {
	logger   *slog.Logger
	asker    Asker
	ontology *ontology.Ontology
	prompt   string
}

func NewAgentDetector(logger *slog.Logger, asker Asker, ont *ontology.Ontology) *AgentDetector {
	return &AgentDetector{
		logger:   logger,
		asker:    asker,
		ontology: ont,
		prompt:   BuildPrompt(ont.Prompts()),
	}
}

// BuildPrompt asks for normalized [x1,y1,x2,y2] boxes of the given descriptions
func BuildPrompt(prompts []string) string {
	var b strings.Builder
	b.WriteString("Find every object in this image that matches one of these descriptions:\n")
	for _, p := range prompts {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString(`Respond with JSON only, in the form {"detections":[{"prompt":"<description>","confidence":<0 to 1>,"box":[x1,y1,x2,y2]}]}. `)
	b.WriteString("Use the description text exactly as listed. ")
	b.WriteString("Coordinates are fractions of the image width and height, with the origin at the top-left corner. ")
	b.WriteString(`If nothing matches, respond with {"detections":[]}.`)
	return b.String()
}

func (d *AgentDetector) Detect(ctx context.Context, imagePath string) ([]models.Detection, error) {
	reply, err := d.asker.Ask(ctx, d.prompt, imagePath)
	if err != nil {
		return nil, fmt.Errorf("vision model failed on '%s': %w", imagePath, err)
	}
	d.logger.Debug("Model reply", "image", imagePath, "reply", reply)

	dets, err := ParseDetections(reply, d.ontology)
	if err != nil {
		return nil, fmt.Errorf("'%s': %w", imagePath, err)
	}
	return dets, nil
}

type replyDetection struct {
	Prompt     string    `json:"prompt"`
	Confidence *float64  `json:"confidence"`
	Box        []float64 `json:"box"`
}

type reply struct {
	Detections []replyDetection `json:"detections"`
}

// ParseDetections extracts the JSON object embedded in a model reply.
// Detections for prompts outside the ontology, or with degenerate boxes,
// are dropped.
func ParseDetections(text string, ont *ontology.Ontology) ([]models.Detection, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrMalformedReply
	}

	var r reply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	dets := []models.Detection{}
	for _, rd := range r.Detections {
		prompt, ok := matchPrompt(rd.Prompt, ont)
		if !ok || len(rd.Box) != 4 {
			continue
		}
		box, ok := toBox(rd.Box)
		if !ok {
			continue
		}
		class, _ := ont.ClassOf(prompt)
		id, _ := ont.ClassID(class)

		confidence := 1.0
		if rd.Confidence != nil {
			confidence = clamp(*rd.Confidence)
		}
		dets = append(dets, models.Detection{
			Class:      class,
			ClassID:    id,
			Prompt:     prompt,
			Confidence: confidence,
			Box:        box,
		})
	}
	return dets, nil
}

// models tend to echo prompts with different case or trailing punctuation
func matchPrompt(s string, ont *ontology.Ontology) (string, bool) {
	if _, ok := ont.ClassOf(s); ok {
		return s, true
	}
	norm := strings.ToLower(strings.Trim(s, " .\t\n"))
	for _, p := range ont.Prompts() {
		if strings.ToLower(p) == norm {
			return p, true
		}
	}
	return "", false
}

func toBox(v []float64) (models.Box, bool) {
	x1, y1, x2, y2 := clamp(v[0]), clamp(v[1]), clamp(v[2]), clamp(v[3])
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	if x2 == x1 || y2 == y1 {
		return models.Box{}, false
	}
	return models.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
