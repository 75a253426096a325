package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/autodataset/internal/models"
	"github.com/bdougie/autodataset/internal/ontology"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOntology(t *testing.T) *ontology.Ontology {
	ont, err := ontology.New([]ontology.Caption{
		{Prompt: "a person", Class: "person"},
		{Prompt: "a forklift", Class: "forklift"},
		{Prompt: "someone walking", Class: "person"},
	})
	require.NoError(t, err)
	return ont
}

type fakeAsker struct {
	reply  string
	err    error
	prompt string
	image  string
}

func (f *fakeAsker) Ask(ctx context.Context, prompt, imagePath string) (string, error) {
	f.prompt = prompt
	f.image = imagePath
	return f.reply, f.err
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt([]string{"a person", "a forklift"})
	assert.Contains(t, p, "- a person\n- a forklift\n")
	assert.Contains(t, p, `"detections"`)
}

func TestParseDetections(t *testing.T) {
	ont := testOntology(t)
	text := "Sure! Here you go:\n```json\n" + `{"detections":[
		{"prompt":"a forklift","confidence":0.8,"box":[0.1,0.2,0.5,0.6]},
		{"prompt":"Someone walking.","confidence":1.7,"box":[0.9,0.9,0.5,1.4]},
		{"prompt":"a cat","confidence":0.9,"box":[0,0,1,1]},
		{"prompt":"a person","box":[0.2,0.2,0.2,0.4]},
		{"prompt":"a person","box":[0.1,0.1]},
		{"prompt":"a person","box":[0,0,0.5,0.5]}
	]}` + "\n```"

	dets, err := ParseDetections(text, ont)
	require.NoError(t, err)
	require.Len(t, dets, 3)

	assert.Equal(t, "forklift", dets[0].Class)
	assert.Equal(t, 1, dets[0].ClassID)
	assert.Equal(t, 0.8, dets[0].Confidence)
	assert.InDelta(t, 0.1, dets[0].Box.X, 1e-9)
	assert.InDelta(t, 0.2, dets[0].Box.Y, 1e-9)
	assert.InDelta(t, 0.4, dets[0].Box.W, 1e-9)
	assert.InDelta(t, 0.4, dets[0].Box.H, 1e-9)

	// case-insensitive prompt match, swapped and clamped corners
	assert.Equal(t, "someone walking", dets[1].Prompt)
	assert.Equal(t, "person", dets[1].Class)
	assert.Equal(t, 0, dets[1].ClassID)
	assert.Equal(t, 1.0, dets[1].Confidence)
	assert.InDelta(t, 0.5, dets[1].Box.X, 1e-9)
	assert.InDelta(t, 0.4, dets[1].Box.W, 1e-9)
	assert.InDelta(t, 0.1, dets[1].Box.H, 1e-9)

	assert.Equal(t, models.Detection{
		Class: "person", ClassID: 0, Prompt: "a person", Confidence: 1,
		Box: models.Box{X: 0, Y: 0, W: 0.5, H: 0.5},
	}, dets[2])
}

func TestParseDetections_Empty(t *testing.T) {
	dets, err := ParseDetections(`{"detections":[]}`, testOntology(t))
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.NotNil(t, dets)
}

func TestParseDetections_Malformed(t *testing.T) {
	ont := testOntology(t)
	for _, text := range []string{
		"I see a forklift near the door.",
		"} nothing {",
		`{"detections": [`,
		`{"detections": "none"}`,
	} {
		_, err := ParseDetections(text, ont)
		assert.ErrorIs(t, err, ErrMalformedReply, text)
	}
}

func TestAgentDetector_Detect(t *testing.T) {
	ont := testOntology(t)
	asker := &fakeAsker{reply: `{"detections":[{"prompt":"a person","confidence":0.5,"box":[0,0,1,1]}]}`}
	d := NewAgentDetector(discardLogger(), asker, ont)

	dets, err := d.Detect(context.Background(), "/data/frame-00000.png")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].Class)
	assert.Equal(t, "/data/frame-00000.png", asker.image)
	assert.Equal(t, BuildPrompt(ont.Prompts()), asker.prompt)
}

func TestAgentDetector_ModelError(t *testing.T) {
	boom := errors.New("connection refused")
	d := NewAgentDetector(discardLogger(), &fakeAsker{err: boom}, testOntology(t))
	_, err := d.Detect(context.Background(), "x.png")
	assert.ErrorIs(t, err, boom)
}
