package classifier

import (
	"encoding/json"
	"fmt"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

const (
	numFeatures = 3
	leafNode    = -1
)

// tree mirrors the array layout of a fitted decision tree: node i is a leaf
// when ChildrenLeft[i] == -1, otherwise samples with
// x[Feature[i]] <= Threshold[i] go left. Value[i] holds per-class weights.
type tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type forestFile struct {
	Classes []int  `json:"classes"`
	Trees   []tree `json:"trees"`
}

// Forest is a tree-ensemble classifier. Each tree votes with its normalised
// leaf distribution and the class with the highest mean wins; ties go to the
// first class.
type Forest struct {
	classes []domain.Label
	trees   []tree
}

func NewForest(classes []int, trees []tree) (*Forest, error) {
	if len(classes) == 0 {
		classes = []int{int(domain.LabelBenign), int(domain.LabelBurst)}
	}
	labels := make([]domain.Label, len(classes))
	for i, c := range classes {
		l := domain.Label(c)
		if !l.Valid() {
			return nil, fmt.Errorf("forest: class %d is not a burst label", c)
		}
		labels[i] = l
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest: no trees")
	}
	for i := range trees {
		if err := trees[i].validate(len(labels)); err != nil {
			return nil, fmt.Errorf("forest: tree %d: %w", i, err)
		}
	}
	return &Forest{classes: labels, trees: trees}, nil
}

func LoadForest(path string) (*Forest, error) {
	data, err := readArtifactFile(path, "model")
	if err != nil {
		return nil, err
	}
	var f forestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	return NewForest(f.Classes, f.Trees)
}

func (t *tree) validate(nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if len(t.Value[i]) != nClasses {
			return fmt.Errorf("node %d: %d class weights, want %d", i, len(t.Value[i]), nClasses)
		}
		if l == leafNode {
			continue
		}
		// Children always follow their parent, which also rules out cycles.
		if l <= i || r <= i || l >= n || r >= n {
			return fmt.Errorf("node %d: children (%d, %d) out of range", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= numFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, f)
		}
	}
	return nil
}

func (t *tree) leaf(x [numFeatures]float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != leafNode {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

func (f *Forest) Predict(x [numFeatures]float64) (domain.Label, error) {
	votes := make([]float64, len(f.classes))
	for i := range f.trees {
		dist := f.trees[i].leaf(x)
		var total float64
		for _, w := range dist {
			total += w
		}
		if total <= 0 {
			continue
		}
		for c, w := range dist {
			votes[c] += w / total
		}
	}

	best := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return f.classes[best], nil
}

func (f *Forest) Close() error {
	return nil
}
