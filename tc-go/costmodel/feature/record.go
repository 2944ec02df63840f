package feature

import (
	"math"
)

// NodeRecord is the serialized form of a loop node.
type NodeRecord struct {
	ChildList           []*NodeRecord `json:"child_list"`
	HasComps            *bool         `json:"has_comps"`
	ComputationsIndices []int         `json:"computations_indices,omitempty"`
	LoopIndex           *int          `json:"loop_index"`
}

// Record is one line of a dataset file: the root node plus the feature rows
// and the measured cost of the program.
type Record struct {
	NodeRecord
	ComputationFeatures [][]float64 `json:"computation_feature_tensors"`
	LoopFeatures        [][]float64 `json:"loop_feature_tensors"`
	Label               *float64    `json:"label"`
}

// flatten lays the nested nodes out in an arena, in pre-order, so that
// children always follow their parent.
func flatten(root *NodeRecord) (*Tree, error) {
	type item struct {
		rec    *NodeRecord
		parent int
	}
	t := &Tree{}
	stack := []item{{rec: root, parent: -1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r := it.rec
		idx := len(t.Nodes)
		switch {
		case r == nil:
			return nil, malformed("node %d is null", idx)
		case r.ChildList == nil:
			return nil, malformed("node %d is missing child_list", idx)
		case r.HasComps == nil:
			return nil, malformed("node %d is missing has_comps", idx)
		case r.LoopIndex == nil:
			return nil, malformed("node %d is missing loop_index", idx)
		case *r.HasComps && len(r.ComputationsIndices) == 0:
			return nil, malformed("node %d has computations but no computations_indices", idx)
		}

		n := Node{
			HasComps:  *r.HasComps,
			LoopIndex: *r.LoopIndex,
		}
		if r.ComputationsIndices != nil {
			n.CompIndices = append([]int{}, r.ComputationsIndices...)
		}
		t.Nodes = append(t.Nodes, n)
		if it.parent >= 0 {
			p := &t.Nodes[it.parent]
			p.Children = append(p.Children, idx)
		}

		// push in reverse so the first child is numbered first
		for i := len(r.ChildList) - 1; i >= 0; i-- {
			stack = append(stack, item{rec: r.ChildList[i], parent: idx})
		}
	}
	return t, nil
}

// Record converts the tree back to its nested form.
func (t *Tree) Record() *NodeRecord {
	recs := make([]*NodeRecord, len(t.Nodes))
	for _, i := range t.PostOrder() {
		n := t.Nodes[i]
		hasComps, loopIndex := n.HasComps, n.LoopIndex
		r := &NodeRecord{
			ChildList: make([]*NodeRecord, 0, len(n.Children)),
			HasComps:  &hasComps,
			LoopIndex: &loopIndex,
		}
		if n.CompIndices != nil {
			r.ComputationsIndices = append([]int{}, n.CompIndices...)
		}
		for _, c := range n.Children {
			r.ChildList = append(r.ChildList, recs[c])
		}
		recs[i] = r
	}
	return recs[0]
}

// validate checks the record against its own feature rows and returns the
// flattened tree.
func (r *Record) validate() (*Tree, error) {
	switch {
	case r.ComputationFeatures == nil:
		return nil, malformed("missing computation_feature_tensors")
	case r.LoopFeatures == nil:
		return nil, malformed("missing loop_feature_tensors")
	case r.Label == nil:
		return nil, malformed("missing label")
	case !(*r.Label > 0) || math.IsInf(*r.Label, 1):
		return nil, malformed("label must be a positive finite number, got %v", *r.Label)
	}
	if err := checkRows("computation_feature_tensors", r.ComputationFeatures); err != nil {
		return nil, err
	}
	if err := checkRows("loop_feature_tensors", r.LoopFeatures); err != nil {
		return nil, err
	}

	t, err := flatten(&r.NodeRecord)
	if err != nil {
		return nil, err
	}
	for i, n := range t.Nodes {
		if n.LoopIndex < 0 || n.LoopIndex >= len(r.LoopFeatures) {
			return nil, outOfRange("node %d: loop_index %d, sample has %d loop feature rows",
				i, n.LoopIndex, len(r.LoopFeatures))
		}
		if !n.HasComps {
			continue
		}
		for _, c := range n.CompIndices {
			if c < 0 || c >= len(r.ComputationFeatures) {
				return nil, outOfRange("node %d: computation index %d, sample has %d computation feature rows",
					i, c, len(r.ComputationFeatures))
			}
		}
	}
	return t, nil
}

// checkRows requires every row to have the same, non-zero width and finite
// values.
func checkRows(field string, rows [][]float64) error {
	for i, row := range rows {
		if len(row) == 0 {
			return malformed("%s row %d is empty", field, i)
		}
		if len(row) != len(rows[0]) {
			return malformed("%s row %d has width %d, row 0 has width %d", field, i, len(row), len(rows[0]))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return malformed("%s row %d has non-finite value %v", field, i, v)
			}
		}
	}
	return nil
}
