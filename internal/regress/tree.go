package regress

import "sort"

// treeNode is one node of a depth-limited regression tree. Leaves carry the
// unscaled response; Predict applies the learning rate. The struct is fully
// exported to JSON so fitted models round-trip through the artifact file.
type treeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
	Leaf      bool      `json:"leaf,omitempty"`
	Value     float64   `json:"value"`
}

func (n *treeNode) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// split is a candidate partition of the rows at a node.
type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

// buildTree grows a least-squares regression tree over the rows in idx.
// Feature order and first-strict-improvement tie breaking keep the result
// deterministic for a fixed input.
func buildTree(x [][]float64, resid []float64, idx []int, depth, minLeaf int, l2 float64) *treeNode {
	if depth <= 0 || len(idx) < 2*minLeaf {
		return leafNode(resid, idx, l2)
	}

	best := findBestSplit(x, resid, idx, minLeaf, l2)
	if best == nil {
		return leafNode(resid, idx, l2)
	}

	return &treeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      buildTree(x, resid, best.left, depth-1, minLeaf, l2),
		Right:     buildTree(x, resid, best.right, depth-1, minLeaf, l2),
	}
}

func leafNode(resid []float64, idx []int, l2 float64) *treeNode {
	sum := 0.0
	for _, i := range idx {
		sum += resid[i]
	}
	return &treeNode{Leaf: true, Value: sum / (float64(len(idx)) + l2)}
}

func findBestSplit(x [][]float64, resid []float64, idx []int, minLeaf int, l2 float64) *split {
	total := 0.0
	for _, i := range idx {
		total += resid[i]
	}
	n := float64(len(idx))
	baseScore := total * total / (n + l2)

	var best *split
	order := make([]int, len(idx))

	for f := 0; f < len(x[idx[0]]); f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		leftSum := 0.0
		for pos := 0; pos < len(order)-1; pos++ {
			leftSum += resid[order[pos]]
			// Cannot split between equal feature values.
			if x[order[pos]][f] == x[order[pos+1]][f] {
				continue
			}
			nl := pos + 1
			nr := len(order) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/(float64(nl)+l2) + rightSum*rightSum/(float64(nr)+l2)
			gain := score - baseScore
			if gain <= 0 {
				continue
			}
			if best == nil || gain > best.gain {
				best = &split{
					feature:   f,
					threshold: (x[order[pos]][f] + x[order[pos+1]][f]) / 2,
					gain:      gain,
					left:      append([]int(nil), order[:nl]...),
					right:     append([]int(nil), order[nl:]...),
				}
			}
		}
	}
	return best
}
