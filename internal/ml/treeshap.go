package ml

// Path-dependent TreeSHAP (Lundberg et al., "Consistent Individualized
// Feature Attribution for Tree Ensembles", algorithm 2). Contributions of one
// tree sum exactly to predict(row) - expectation(0).

type pathElement struct {
	feature      int
	zeroFraction float64
	oneFraction  float64
	pweight      float64
}

// shap adds the scaled contributions of the tree for row into phi.
func (t *tree) shap(row, phi []float64, scale float64) {
	t.recurse(row, phi, scale, 0, 0, nil, 1, 1, -1)
}

func (t *tree) recurse(row, phi []float64, scale float64, node, depth int,
	parent []pathElement, zero, one float64, feature int) {
	path := make([]pathElement, depth+1)
	copy(path, parent)
	extendPath(path, depth, zero, one, feature)

	n := &t.nodes[node]
	if n.isLeaf() {
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			phi[el.feature] += w * (el.oneFraction - el.zeroFraction) * n.value * scale
		}
		return
	}

	hot, cold := n.right, n.left
	if n.goesLeft(row[n.feature]) {
		hot, cold = n.left, n.right
	}
	cover := t.nodes[n.left].cover + t.nodes[n.right].cover
	hotZero := t.nodes[hot].cover / cover
	coldZero := t.nodes[cold].cover / cover

	// a feature already on the path is unwound and re-split here
	incomingZero, incomingOne := 1.0, 1.0
	idx := 0
	for ; idx <= depth; idx++ {
		if path[idx].feature == n.feature {
			break
		}
	}
	if idx <= depth {
		incomingZero = path[idx].zeroFraction
		incomingOne = path[idx].oneFraction
		unwindPath(path, depth, idx)
		depth--
	}

	// subtrees with no weight on either side contribute nothing
	if hotZero*incomingZero > 0 || incomingOne > 0 {
		t.recurse(row, phi, scale, hot, depth+1, path, hotZero*incomingZero, incomingOne, n.feature)
	}
	if coldZero*incomingZero > 0 {
		t.recurse(row, phi, scale, cold, depth+1, path, coldZero*incomingZero, 0, n.feature)
	}
}

func extendPath(path []pathElement, depth int, zero, one float64, feature int) {
	path[depth] = pathElement{feature: feature, zeroFraction: zero, oneFraction: one}
	if depth == 0 {
		path[depth].pweight = 1
	}
	for i := depth - 1; i >= 0; i-- {
		path[i+1].pweight += one * path[i].pweight * float64(i+1) / float64(depth+1)
		path[i].pweight = zero * path[i].pweight * float64(depth-i) / float64(depth+1)
	}
}

func unwindPath(path []pathElement, depth, index int) {
	one := path[index].oneFraction
	zero := path[index].zeroFraction
	next := path[depth].pweight

	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].pweight
			path[i].pweight = next * float64(depth+1) / (float64(i+1) * one)
			next = tmp - path[i].pweight*zero*float64(depth-i)/float64(depth+1)
		} else {
			path[i].pweight = path[i].pweight * float64(depth+1) / (zero * float64(depth-i))
		}
	}

	for i := index; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

func unwoundPathSum(path []pathElement, depth, index int) float64 {
	one := path[index].oneFraction
	zero := path[index].zeroFraction
	next := path[depth].pweight
	var total float64

	if one != 0 {
		for i := depth - 1; i >= 0; i-- {
			tmp := next * float64(depth+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].pweight - tmp*zero*float64(depth-i)/float64(depth+1)
		}
	} else {
		for i := depth - 1; i >= 0; i-- {
			total += path[i].pweight / zero / (float64(depth-i) / float64(depth+1))
		}
	}
	return total
}
