// Package postprocess turns a classifier's softmax vector into a ranked,
// human-readable prediction.
package postprocess

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// FallbackDescription is returned for labels missing from the description table.
const FallbackDescription = "No description available."

// scoreTolerance absorbs float32 softmax drift just outside [0,1].
const scoreTolerance = 1e-6

var ErrInvalidInput = errors.New("invalid input")

// ClassScore is one class's confidence as a percentage.
type ClassScore struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Breakdown is the per-class ranking, highest confidence first.
type Breakdown []ClassScore

// MarshalJSON encodes the breakdown as an object whose keys keep the ranking order.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(s.Confidence, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Prediction is the structured result of one classification.
type Prediction struct {
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	Breakdown   Breakdown `json:"confidence_breakdown"`
}

// Postprocess ranks scores against labels. Ties on the maximum resolve to the
// lowest index, and the breakdown keeps class order among equal percentages.
func Postprocess(scores []float64, labels []string, descriptions map[string]string) (*Prediction, error) {
	if len(scores) == 0 || len(labels) == 0 {
		return nil, fmt.Errorf("%w: empty score vector or label list", ErrInvalidInput)
	}
	if len(scores) != len(labels) {
		return nil, fmt.Errorf("%w: got %d scores for %d labels", ErrInvalidInput, len(scores), len(labels))
	}

	maxIdx := 0
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: score %d is not finite", ErrInvalidInput, i)
		}
		if s < -scoreTolerance || s > 1+scoreTolerance {
			return nil, fmt.Errorf("%w: score %d = %g outside [0,1]", ErrInvalidInput, i, s)
		}
		if s > scores[maxIdx] {
			maxIdx = i
		}
	}

	breakdown := make(Breakdown, len(scores))
	for i, s := range scores {
		breakdown[i] = ClassScore{Label: labels[i], Confidence: percent(s)}
	}
	sort.SliceStable(breakdown, func(a, b int) bool {
		return breakdown[a].Confidence > breakdown[b].Confidence
	})

	label := labels[maxIdx]
	description, ok := descriptions[label]
	if !ok {
		description = FallbackDescription
	}

	return &Prediction{
		Label:       label,
		Confidence:  percent(scores[maxIdx]),
		Description: description,
		Breakdown:   breakdown,
	}, nil
}

// percent scales a probability to a percentage with one decimal place.
func percent(score float64) float64 {
	p := math.Round(score*100*10) / 10
	return math.Max(0, math.Min(100, p))
}
