// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transformers implements HTML text transformers and the pipeline
// that applies them in order.
//
// Transformers are pure functions over the raw markup: they never fail and
// hold no mutable state, so a Pipeline may be used from many goroutines.
package transformers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Transformer is an interface declaring a transformer.
type Transformer interface {
	Name() string
	Transform(string) string
}

// Maker is a type of function which accepts arguments
// for transformer and returns a new instance of the transformer.
type Maker func([]string) (Transformer, error)

// ErrUnknownTransformer is returned when no maker is registered for a name.
var ErrUnknownTransformer = errors.New("unknown transformer")

var (
	makersMu sync.RWMutex
	// makers stores builtin transformer makers addressed by their names.
	makers = make(map[string]Maker)
)

// Register registers a new transformer maker.
func Register(name string, maker Maker) {
	makersMu.Lock()
	defer makersMu.Unlock()
	makers[name] = maker
}

// Make creates a new transformer by name with the given arguments.
func Make(name string, args []string) (Transformer, error) {
	makersMu.RLock()
	maker := makers[name]
	makersMu.RUnlock()
	if maker == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransformer, name)
	}
	t, err := maker(args)
	if err != nil {
		return nil, fmt.Errorf("transformer %s: %w", name, err)
	}
	return t, nil
}

// Names returns the sorted names of all registered transformers.
func Names() []string {
	makersMu.RLock()
	defer makersMu.RUnlock()
	names := make([]string, 0, len(makers))
	for k := range makers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DefaultNames is the order in which transformers run when nothing is configured.
//
// Comments go first so they don't split whitespace runs; scripts are trimmed
// last because the collapser leaves script bodies alone.
var DefaultNames = []string{
	RemoveCommentsName,
	RemoveWhitespaceName,
	TrimScriptsName,
}

// Spec is one configured pipeline entry.
type Spec struct {
	Name string
	Args []string
}

func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	return s.Name + "(" + strings.Join(s.Args, " ") + ")"
}

// ParseSpec parses a configuration value, which is either a name
// or a list of strings with the name first and maker arguments after it.
func ParseSpec(line interface{}) (Spec, error) {
	switch x := line.(type) {
	case string:
		return Spec{Name: x}, nil
	case []string:
		if len(x) == 0 {
			return Spec{}, errors.New("failed to parse transformer: empty list")
		}
		return Spec{Name: x[0], Args: x[1:]}, nil
	case []interface{}:
		if len(x) == 0 {
			return Spec{}, errors.New("failed to parse transformer: empty list")
		}
		args := make([]string, len(x))
		for i, v := range x {
			s, ok := v.(string)
			if !ok {
				return Spec{}, errors.New("failed to parse transformer: not an array of strings")
			}
			args[i] = s
		}
		return Spec{Name: args[0], Args: args[1:]}, nil
	default:
		return Spec{}, fmt.Errorf("failed to parse transformer: %T is not a string or array", line)
	}
}

// ParseSpecs parses a list of configuration values with ParseSpec.
func ParseSpecs(lines []interface{}) ([]Spec, error) {
	specs := make([]Spec, 0, len(lines))
	for i, line := range lines {
		s, err := ParseSpec(line)
		if err != nil {
			return nil, fmt.Errorf("transformers[%d]: %w", i, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// Pipeline is an ordered list of transformers.
type Pipeline struct {
	specs        []Spec
	transformers []Transformer
}

// New resolves specs into a pipeline. Unknown names are an error.
func New(specs []Spec) (*Pipeline, error) {
	p := &Pipeline{
		specs:        make([]Spec, 0, len(specs)),
		transformers: make([]Transformer, 0, len(specs)),
	}
	for _, s := range specs {
		t, err := Make(s.Name, s.Args)
		if err != nil {
			return nil, err
		}
		p.specs = append(p.specs, s)
		p.transformers = append(p.transformers, t)
	}
	return p, nil
}

// NewFromNames is New for entries without arguments.
func NewFromNames(names ...string) (*Pipeline, error) {
	specs := make([]Spec, len(names))
	for i, n := range names {
		specs[i] = Spec{Name: n}
	}
	return New(specs)
}

// Default returns the pipeline built from DefaultNames.
func Default() *Pipeline {
	p, err := NewFromNames(DefaultNames...)
	if err != nil {
		panic(err.Error()) // builtins are registered in init
	}
	return p
}

// Apply runs input through every transformer in order.
func (p *Pipeline) Apply(input string) string {
	if p == nil {
		return input
	}
	return Apply(input, p.transformers...)
}

// Each calls fn for every transformer in order, passing the document
// produced by the previous one. It returns the final document.
func (p *Pipeline) Each(input string, fn func(t Transformer, in string) string) string {
	if p == nil {
		return input
	}
	for _, t := range p.transformers {
		input = fn(t, input)
	}
	return input
}

// Len returns the number of transformers.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.transformers)
}

// Names returns the transformer names in pipeline order.
func (p *Pipeline) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.transformers))
	for i, t := range p.transformers {
		names[i] = t.Name()
	}
	return names
}

// Signature identifies the configured order and arguments.
// Two pipelines with equal signatures produce equal output.
func (p *Pipeline) Signature() string {
	if p == nil {
		return ""
	}
	parts := make([]string, len(p.specs))
	for i, s := range p.specs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Apply threads input through ts in order, feeding each one's output
// to the next. With no transformers it returns input unchanged.
func Apply(input string, ts ...Transformer) string {
	for _, t := range ts {
		input = t.Transform(input)
	}
	return input
}
