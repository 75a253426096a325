package ontology

import (
	"fmt"
	"strings"
)

// Caption pairs a free-text prompt with the class label it should produce
type Caption struct {
	Prompt string `json:"prompt"`
	Class  string `json:"class"`
}

// Ontology is an immutable prompt -> class mapping. Class ids follow the
// order in which each class first appears.
type Ontology struct {
	captions    []Caption
	classes     []string
	classIndex  map[string]int
	promptClass map[string]string
}

// New builds an ontology from the given captions
func New(captions []Caption) (*Ontology, error) {
	if len(captions) == 0 {
		return nil, fmt.Errorf("ontology has no prompts")
	}

	o := &Ontology{
		captions:    make([]Caption, 0, len(captions)),
		classIndex:  map[string]int{},
		promptClass: map[string]string{},
	}
	for _, c := range captions {
		if strings.TrimSpace(c.Prompt) == "" {
			return nil, fmt.Errorf("ontology contains an empty prompt")
		}
		if strings.TrimSpace(c.Class) == "" {
			return nil, fmt.Errorf("prompt '%s' has an empty class label", c.Prompt)
		}
		if _, dup := o.promptClass[c.Prompt]; dup {
			return nil, fmt.Errorf("prompt '%s' is defined twice", c.Prompt)
		}
		o.captions = append(o.captions, c)
		o.promptClass[c.Prompt] = c.Class
		if _, seen := o.classIndex[c.Class]; !seen {
			o.classIndex[c.Class] = len(o.classes)
			o.classes = append(o.classes, c.Class)
		}
	}
	return o, nil
}

// Captions returns a copy of the captions in the order they were given
func (o *Ontology) Captions() []Caption {
	out := make([]Caption, len(o.captions))
	copy(out, o.captions)
	return out
}

// Map returns the prompt -> class mapping
func (o *Ontology) Map() map[string]string {
	m := make(map[string]string, len(o.promptClass))
	for k, v := range o.promptClass {
		m[k] = v
	}
	return m
}

// Prompts lists the prompts in the order they were given
func (o *Ontology) Prompts() []string {
	prompts := make([]string, len(o.captions))
	for i, c := range o.captions {
		prompts[i] = c.Prompt
	}
	return prompts
}

// Classes lists the unique class labels; the index of a label is its class id
func (o *Ontology) Classes() []string {
	out := make([]string, len(o.classes))
	copy(out, o.classes)
	return out
}

// ClassOf returns the class label a prompt maps to
func (o *Ontology) ClassOf(prompt string) (string, bool) {
	class, ok := o.promptClass[prompt]
	return class, ok
}

// ClassID returns the numeric id of a class label
func (o *Ontology) ClassID(class string) (int, bool) {
	id, ok := o.classIndex[class]
	return id, ok
}

