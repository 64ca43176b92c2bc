package ml

import (
	"fmt"

	"fraud-scoring-service/internal/domain/fraud"
)

// SequenceTensor is a row-major [Batch, SequenceLength, FeatureCount] block.
// Rows run oldest to newest within each window.
type SequenceTensor struct {
	Batch int
	Data  []float64
}

// Shape returns the tensor dimensions
func (t SequenceTensor) Shape() [3]int {
	return [3]int{t.Batch, SequenceLength, FeatureCount}
}

// Window returns the SequenceLength*FeatureCount values of item n
func (t SequenceTensor) Window(n int) []float64 {
	size := SequenceLength * FeatureCount
	return t.Data[n*size : (n+1)*size]
}

// Row returns the feature row at time step step of item n
func (t SequenceTensor) Row(n, step int) []float64 {
	w := t.Window(n)
	return w[step*FeatureCount : (step+1)*FeatureCount]
}

// BuildSequence assembles a [1, SequenceLength, FeatureCount] window.
//
// Without history the vector is repeated for every step, so a first-ever
// transaction still fills the window. With history the vector is appended,
// the newest SequenceLength rows are kept, and a short window is left-padded
// by repeating its oldest row.
func (e *FeatureEngineer) BuildSequence(vector FeatureVector, history []FeatureVector) (SequenceTensor, error) {
	return BuildSequence(vector, history)
}

// BuildSequence is the engineer-independent form of FeatureEngineer.BuildSequence
func BuildSequence(vector FeatureVector, history []FeatureVector) (SequenceTensor, error) {
	if len(vector) != FeatureCount {
		return SequenceTensor{}, fmt.Errorf("%w: expected %d features, got %d",
			fraud.ErrFeatureCountMismatch, FeatureCount, len(vector))
	}
	for i, h := range history {
		if len(h) != FeatureCount {
			return SequenceTensor{}, fmt.Errorf("%w: history row %d has %d features",
				fraud.ErrFeatureCountMismatch, i, len(h))
		}
	}

	rows := make([]FeatureVector, 0, SequenceLength)
	if len(history) == 0 {
		for i := 0; i < SequenceLength; i++ {
			rows = append(rows, vector)
		}
	} else {
		stacked := append(append(make([]FeatureVector, 0, len(history)+1), history...), vector)
		if len(stacked) > SequenceLength {
			stacked = stacked[len(stacked)-SequenceLength:]
		}
		for i := len(stacked); i < SequenceLength; i++ {
			rows = append(rows, stacked[0])
		}
		rows = append(rows, stacked...)
	}

	data := make([]float64, 0, SequenceLength*FeatureCount)
	for _, r := range rows {
		data = append(data, r...)
	}
	return SequenceTensor{Batch: 1, Data: data}, nil
}

// StackSequences concatenates single windows into one [N, SequenceLength, FeatureCount] tensor
func StackSequences(seqs []SequenceTensor) SequenceTensor {
	size := SequenceLength * FeatureCount
	total := 0
	for _, s := range seqs {
		total += s.Batch
	}

	data := make([]float64, 0, total*size)
	for _, s := range seqs {
		data = append(data, s.Data[:s.Batch*size]...)
	}
	return SequenceTensor{Batch: total, Data: data}
}
