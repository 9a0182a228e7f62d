// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scorer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"unicode"

	"go.yaml.in/yaml/v3"
)

// Logistic is a bag-of-terms logistic regression: sigmoid(bias + sum of
// weight*count over known terms).
type Logistic struct {
	Bias    float64            `yaml:"bias"`
	Weights map[string]float64 `yaml:"weights"`
}

// TrainOptions controls batch gradient descent.
type TrainOptions struct {
	// Epochs is the number of full passes (default 200).
	Epochs int

	// LearningRate is the step size (default 0.1).
	LearningRate float64

	// L2 is the ridge penalty on weights (default 0.001; negative disables it).
	L2 float64

	// MinCount drops terms seen in fewer documents (default 1).
	MinCount int
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Epochs <= 0 {
		o.Epochs = 200
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.1
	}
	if o.L2 < 0 {
		o.L2 = 0
	} else if o.L2 == 0 {
		o.L2 = 0.001
	}
	if o.MinCount <= 0 {
		o.MinCount = 1
	}
	return o
}

// Train fits a Logistic model to labelled texts (label true = relevant).
// Gradient descent runs over terms in sorted order, so the same inputs
// always yield the same weights.
func Train(texts []string, labels []bool, opts TrainOptions) (*Logistic, error) {
	if len(texts) == 0 {
		return nil, errors.New("no training examples")
	}
	if len(texts) != len(labels) {
		return nil, fmt.Errorf("%d texts but %d labels", len(texts), len(labels))
	}
	opts = opts.withDefaults()

	docs := make([][]termCount, len(texts))
	docFreq := make(map[string]int)
	for i, t := range texts {
		docs[i] = termCounts(t)
		for _, tc := range docs[i] {
			docFreq[tc.term]++
		}
	}

	var vocab []string
	for term, n := range docFreq {
		if n >= opts.MinCount {
			vocab = append(vocab, term)
		}
	}
	sort.Strings(vocab)

	m := &Logistic{Weights: make(map[string]float64, len(vocab))}
	grad := make(map[string]float64, len(vocab))
	n := float64(len(texts))

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for _, term := range vocab {
			grad[term] = 0
		}
		var gradBias float64
		for i, doc := range docs {
			y := 0.0
			if labels[i] {
				y = 1
			}
			diff := m.predict(doc) - y
			gradBias += diff
			for _, tc := range doc {
				if _, ok := grad[tc.term]; ok {
					grad[tc.term] += diff * tc.count
				}
			}
		}
		m.Bias -= opts.LearningRate * gradBias / n
		for _, term := range vocab {
			w := m.Weights[term]
			m.Weights[term] = w - opts.LearningRate*(grad[term]/n+opts.L2*w)
		}
	}
	return m, nil
}

// Score implements Scorer.
func (m *Logistic) Score(text string) float64 {
	return clamp(m.predict(termCounts(text)))
}

func (m *Logistic) predict(counts []termCount) float64 {
	z := m.Bias
	for _, tc := range counts {
		z += m.Weights[tc.term] * tc.count
	}
	return 1 / (1 + math.Exp(-z))
}

// LoadLogistic reads model weights from a YAML file.
func LoadLogistic(path string) (*Logistic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	var m Logistic
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	if m.Weights == nil {
		m.Weights = map[string]float64{}
	}
	return &m, nil
}

// Save writes the model weights as YAML.
func (m *Logistic) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type termCount struct {
	term  string
	count float64
}

// termCounts lowercases text and counts alphanumeric word tokens of two or
// more characters. Terms are sorted so floating-point sums are reproducible.
func termCounts(text string) []termCount {
	counts := make(map[string]float64)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		counts[w]++
	}
	out := make([]termCount, 0, len(counts))
	for term, c := range counts {
		out = append(out, termCount{term: term, count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].term < out[j].term })
	return out
}
