// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scorer

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristic(t *testing.T) {
	h := DefaultHeuristic()
	long := strings.Repeat("glycaemic control outcomes ", 10)

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"short without design", "Resveratrol and glucose", 0.5},
		{"short with design", "Resveratrol improves HbA1c: a randomized controlled trial\nplacebo", 0.7},
		{"long without design", long, 0.7},
		{"long with design", long + " placebo", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, h.Score(tt.text), 1e-12)
		})
	}
}

func TestHeuristic_Clamped(t *testing.T) {
	h := DefaultHeuristic()
	h.Base = 0.9
	assert.Equal(t, 1.0, h.Score(strings.Repeat("trial ", 50)))

	h.Base = -1
	assert.Equal(t, 0.0, h.Score("x"))
}

func TestNew(t *testing.T) {
	s, err := New(KindHeuristic, "")
	require.NoError(t, err)
	assert.IsType(t, &Heuristic{}, s)

	_, err = New(KindLogistic, "")
	assert.Error(t, err)

	_, err = New("svm", "")
	assert.Error(t, err)
}

func trainingSet() ([]string, []bool) {
	texts := []string{
		"resveratrol randomized placebo trial hba1c",
		"resveratrol double blind trial glucose",
		"randomized trial resveratrol insulin",
		"mouse model of diabetes in vitro",
		"editorial commentary on diabetes policy",
		"cell line study of resveratrol in mice",
	}
	labels := []bool{true, true, true, false, false, false}
	return texts, labels
}

func TestTrain_Separates(t *testing.T) {
	texts, labels := trainingSet()
	m, err := Train(texts, labels, TrainOptions{Epochs: 500, LearningRate: 0.5})
	require.NoError(t, err)

	pos := m.Score("a randomized placebo trial")
	neg := m.Score("an in vitro mouse study")
	assert.Greater(t, pos, 0.5)
	assert.Less(t, neg, 0.5)
	assert.GreaterOrEqual(t, neg, 0.0)
	assert.LessOrEqual(t, pos, 1.0)
}

func TestTrain_Deterministic(t *testing.T) {
	texts, labels := trainingSet()
	a, err := Train(texts, labels, TrainOptions{})
	require.NoError(t, err)
	b, err := Train(texts, labels, TrainOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.Bias, b.Bias)
	assert.Equal(t, a.Weights, b.Weights)

	text := "randomized resveratrol trial in adults"
	assert.Equal(t, a.Score(text), a.Score(text))
	assert.Equal(t, a.Score(text), b.Score(text))
}

func TestTrain_Errors(t *testing.T) {
	_, err := Train(nil, nil, TrainOptions{})
	assert.Error(t, err)

	_, err = Train([]string{"a"}, []bool{true, false}, TrainOptions{})
	assert.Error(t, err)
}

func TestLogistic_SaveLoad(t *testing.T) {
	texts, labels := trainingSet()
	m, err := Train(texts, labels, TrainOptions{Epochs: 50})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, m.Save(path))

	s, err := New(KindLogistic, path)
	require.NoError(t, err)

	text := "resveratrol randomized trial"
	assert.InDelta(t, m.Score(text), s.Score(text), 1e-9)
}

func TestLoadLogistic_Missing(t *testing.T) {
	_, err := LoadLogistic(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestTermCounts(t *testing.T) {
	got := termCounts("Trial, trial; a T2D-trial!")
	assert.Equal(t, []termCount{{"t2d", 1}, {"trial", 3}}, got)
}
