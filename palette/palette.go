// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package palette assigns color ids to annotation labels.
package palette

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tflexsoom/spanpart/span"
)

const (
	// ColorModulo is the number of distinct colors. Color ids run from 1 to
	// ColorModulo inclusive, matching the new-span-color-N style classes.
	ColorModulo = 24

	// MaxLabels is the largest number of distinct labels a palette accepts.
	MaxLabels = 64
)

var (
	ErrTooManyLabels = fmt.Errorf("palette: more than %d labels", MaxLabels)
	ErrInvalidColor  = errors.New("palette: invalid color")
)

// Palette maps labels to colors. Labels that were never assigned a color get
// the next one in rotation the first time they are looked up. The rotation
// skips colors pinned with [Palette.Assign], unless every color is pinned.
//
// A zero Palette is ready to use. A Palette is safe for concurrent use, so
// one scheme may be shared by every session.
type Palette struct {
	mu     sync.Mutex
	colors map[string]int
	pinned map[string]bool
	order  []string
	issued int
}

// New returns a palette with the given labels pinned to their colors, in
// order.
func New(labels ...span.ColorLabel) (*Palette, error) {
	p := new(Palette)
	for _, l := range labels {
		if err := p.Assign(l.Label, l.Color); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Len returns the number of labels known to the palette.
func (p *Palette) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Assign pins label to color, replacing any previous assignment.
func (p *Palette) Assign(label string, color int) error {
	if color < 1 || color > ColorModulo {
		return fmt.Errorf("%w: %d for %q is not in [1, %d]", ErrInvalidColor, color, label, ColorModulo)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.set(label, color); err != nil {
		return err
	}
	if p.pinned == nil {
		p.pinned = make(map[string]bool)
	}
	p.pinned[label] = true
	return nil
}

// Color returns the color of label, assigning the next one in rotation if it
// has none yet.
func (p *Palette) Color(label string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if color, ok := p.colors[label]; ok {
		return color, nil
	}

	if len(p.order) >= MaxLabels {
		return 0, fmt.Errorf("%w: cannot add %q", ErrTooManyLabels, label)
	}
	color := p.next()
	if err := p.set(label, color); err != nil {
		return 0, err
	}
	return color, nil
}

// next advances the rotation past pinned colors.
func (p *Palette) next() int {
	taken := make(map[int]bool, len(p.pinned))
	for label := range p.pinned {
		taken[p.colors[label]] = true
	}

	first := p.issued%ColorModulo + 1
	for range ColorModulo {
		color := p.issued%ColorModulo + 1
		p.issued++
		if !taken[color] {
			return color
		}
	}

	// Every color is pinned.
	p.issued -= ColorModulo - 1
	return first
}

// Arm returns the annotation tool for label. The empty label is the eraser,
// for which Arm returns nil.
func (p *Palette) Arm(label string) (*span.ColorLabel, error) {
	if label == "" {
		return nil, nil
	}

	color, err := p.Color(label)
	if err != nil {
		return nil, err
	}
	return &span.ColorLabel{Color: color, Label: label}, nil
}

// Labels returns every known label with its color, in the order the labels
// were first seen.
func (p *Palette) Labels() []span.ColorLabel {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]span.ColorLabel, len(p.order))
	for i, label := range p.order {
		out[i] = span.ColorLabel{Color: p.colors[label], Label: label}
	}
	return out
}

func (p *Palette) set(label string, color int) error {
	if _, ok := p.colors[label]; !ok {
		if len(p.order) >= MaxLabels {
			return fmt.Errorf("%w: cannot add %q", ErrTooManyLabels, label)
		}
		p.order = append(p.order, label)
	}

	if p.colors == nil {
		p.colors = make(map[string]int)
	}
	p.colors[label] = color
	return nil
}
