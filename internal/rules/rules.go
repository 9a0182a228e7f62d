// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules holds topic-scoped rule packs: declarative positive,
// negative, and design pattern sets matched against citation text.
// Packs are data registered by topic, so new topics need no code changes.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Rule identifiers reported when a pattern set fires.
const (
	RulePositive = "kw_pos"
	RuleDesign   = "kw_design"
	RuleNegative = "kw_neg"
)

// Pattern is one case-insensitive regular expression with a stable identifier.
type Pattern struct {
	ID   string `json:"id" yaml:"id"`
	Expr string `json:"expr" yaml:"expr"`
}

// PackSpec is the serialisable form of a rule pack.
type PackSpec struct {
	Topic    string    `json:"topic" yaml:"topic"`
	Positive []Pattern `json:"positive" yaml:"positive"`
	Negative []Pattern `json:"negative" yaml:"negative"`
	Design   []Pattern `json:"design" yaml:"design"`
}

type compiled struct {
	id string
	re *regexp.Regexp
}

// Pack is a compiled rule pack. It is safe for concurrent use.
type Pack struct {
	topic    string
	positive []compiled
	negative []compiled
	design   []compiled
}

// Hits reports which pattern sets fired for a text.
type Hits struct {
	Positive bool
	Negative bool
	Design   bool

	// Rules lists the set-level identifiers (kw_pos, kw_design, kw_neg)
	// followed by the ids of every pattern that fired.
	Rules []string
}

// Compile builds a Pack from its spec.
func Compile(spec PackSpec) (*Pack, error) {
	if spec.Topic == "" {
		return nil, fmt.Errorf("rule pack has no topic")
	}
	p := &Pack{topic: spec.Topic}
	var err error
	if p.positive, err = compileSet(spec.Topic, "positive", spec.Positive); err != nil {
		return nil, err
	}
	if p.negative, err = compileSet(spec.Topic, "negative", spec.Negative); err != nil {
		return nil, err
	}
	if p.design, err = compileSet(spec.Topic, "design", spec.Design); err != nil {
		return nil, err
	}
	return p, nil
}

func compileSet(topic, set string, patterns []Pattern) ([]compiled, error) {
	out := make([]compiled, 0, len(patterns))
	for i, pat := range patterns {
		re, err := regexp.Compile("(?i)" + pat.Expr)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %s pattern %d (%q): %w", topic, set, i, pat.Expr, err)
		}
		id := pat.ID
		if id == "" {
			id = fmt.Sprintf("%s:%s:%d", topic, set, i)
		}
		out = append(out, compiled{id: id, re: re})
	}
	return out, nil
}

// MustCompile is like Compile but panics on error. It is used for the
// built-in packs.
func MustCompile(spec PackSpec) *Pack {
	p, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// Topic returns the pack's topic identifier.
func (p *Pack) Topic() string { return p.topic }

// Match tests all three pattern sets against text.
func (p *Pack) Match(text string) Hits {
	var h Hits
	posIDs := firing(p.positive, text)
	designIDs := firing(p.design, text)
	negIDs := firing(p.negative, text)

	if len(posIDs) > 0 {
		h.Positive = true
		h.Rules = append(h.Rules, RulePositive)
	}
	if len(designIDs) > 0 {
		h.Design = true
		h.Rules = append(h.Rules, RuleDesign)
	}
	if len(negIDs) > 0 {
		h.Negative = true
		h.Rules = append(h.Rules, RuleNegative)
	}
	h.Rules = append(h.Rules, posIDs...)
	h.Rules = append(h.Rules, designIDs...)
	h.Rules = append(h.Rules, negIDs...)
	return h
}

func firing(set []compiled, text string) []string {
	var ids []string
	for _, c := range set {
		if c.re.MatchString(text) {
			ids = append(ids, c.id)
		}
	}
	return ids
}

// Registry looks up rule packs by topic.
type Registry struct {
	mu    sync.RWMutex
	packs map[string]*Pack
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{packs: make(map[string]*Pack)}
}

// DefaultRegistry returns a registry seeded with the built-in topics.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, spec := range builtinPacks {
		r.Register(MustCompile(spec))
	}
	return r
}

// Register adds or replaces the pack for its topic.
func (r *Registry) Register(p *Pack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packs[p.topic] = p
}

// Lookup returns the pack for topic.
func (r *Registry) Lookup(topic string) (*Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packs[topic]
	if !ok {
		return nil, fmt.Errorf("unknown topic %q (available: %v)", topic, r.topicsLocked())
	}
	return p, nil
}

// Topics returns the registered topics in sorted order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topicsLocked()
}

func (r *Registry) topicsLocked() []string {
	topics := make([]string, 0, len(r.packs))
	for t := range r.packs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// LoadFile reads a YAML list of pack specs and registers each, replacing
// built-in packs with the same topic.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rule packs %s: %w", path, err)
	}
	var specs []PackSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return fmt.Errorf("parsing rule packs %s: %w", path, err)
	}
	for _, spec := range specs {
		p, err := Compile(spec)
		if err != nil {
			return fmt.Errorf("rule packs %s: %w", path, err)
		}
		r.Register(p)
	}
	return nil
}
