package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// LabelBatchFlat stores the labels of a batch in a flat buffer, encoded per
// label mode:
//
//	int:         Ints,   shape [BatchSize]
//	binary:      Floats, shape [BatchSize, 1]
//	categorical: Floats, shape [BatchSize, Dim] one-hot
type LabelBatchFlat struct {
	Mode      LabelMode
	Ints      []int32
	Floats    []float32
	BatchSize int
	Dim       int
}

// EncodeLabels encodes the class index of each example for the label mode.
// numClasses is the length of the categorical one-hot rows.
func EncodeLabels(mode LabelMode, classes []int, numClasses int) (*LabelBatchFlat, error) {
	b := &LabelBatchFlat{Mode: mode, BatchSize: len(classes)}
	for i, class := range classes {
		if class < 0 || class >= numClasses {
			return nil, errors.Errorf("label %d at example %d out of range [0, %d)", class, i, numClasses)
		}
	}
	switch mode {
	case LabelModeInt:
		b.Dim = 1
		b.Ints = make([]int32, len(classes))
		for i, class := range classes {
			b.Ints[i] = int32(class)
		}
	case LabelModeBinary:
		if numClasses != 2 {
			return nil, errors.Errorf("binary labels need exactly 2 classes, got %d", numClasses)
		}
		b.Dim = 1
		b.Floats = make([]float32, len(classes))
		for i, class := range classes {
			b.Floats[i] = float32(class)
		}
	case LabelModeCategorical:
		b.Dim = numClasses
		b.Floats = make([]float32, len(classes)*numClasses)
		for i, class := range classes {
			b.Floats[i*numClasses+class] = 1
		}
	default:
		return nil, errors.Errorf("label mode %q has no label encoding", mode)
	}
	return b, nil
}

// ToGomlxTensor converts the labels to a gomlx tensor: int32 for int labels,
// float32 otherwise.
func (b *LabelBatchFlat) ToGomlxTensor() (*tensors.Tensor, error) {
	switch b.Mode {
	case LabelModeInt:
		return tensors.FromAnyValue(b.Ints), nil
	case LabelModeBinary, LabelModeCategorical:
		rows := make([][]float32, b.BatchSize)
		for i := range b.BatchSize {
			rows[i] = b.Floats[i*b.Dim : (i+1)*b.Dim]
		}
		if b.BatchSize == 0 {
			rows = make([][]float32, 0)
		}
		return tensors.FromAnyValue(rows), nil
	}
	return nil, errors.Errorf("label mode %q has no tensor representation", b.Mode)
}
