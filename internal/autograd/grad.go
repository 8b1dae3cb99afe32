package autograd

import "fmt"

// Grad returns d(out)/d(w) for every w in wrt. out must be 1x1.
//
// Targets act as boundaries: the walk never continues past a node listed in
// wrt, so the result is the partial derivative even when one target was
// computed from another. Targets out does not depend on get zeros.
//
// With createGraph the returned gradients stay attached to the graph and can
// be differentiated again; otherwise they are detached.
func Grad(out *Tensor, wrt []*Tensor, createGraph bool) ([]*Tensor, error) {
	if out.rows != 1 || out.cols != 1 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrNotScalar, out.rows, out.cols)
	}

	targets := make(map[*Tensor]bool, len(wrt))
	for _, w := range wrt {
		targets[w] = true
	}

	order := topoOrder(out, targets)
	grads := make(map[*Tensor]*Tensor, len(order))
	grads[out] = Ones(1, 1)

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := grads[node]
		if g == nil || targets[node] || node.backward == nil {
			continue
		}
		parentGrads := node.backward(g)
		for j, parent := range node.parents {
			pg := parentGrads[j]
			if pg == nil || !parent.requiresGrad && !targets[parent] {
				continue
			}
			if acc, ok := grads[parent]; ok {
				grads[parent] = Add(acc, pg)
			} else {
				grads[parent] = pg
			}
		}
	}

	result := make([]*Tensor, len(wrt))
	for i, w := range wrt {
		g, ok := grads[w]
		if !ok {
			result[i] = Zeros(w.rows, w.cols)
			continue
		}
		if !createGraph {
			g = g.Detach()
		}
		result[i] = g
	}
	return result, nil
}

// topoOrder lists the nodes between out and the targets, inputs first.
// Nodes that cannot reach a target are dropped.
func topoOrder(out *Tensor, targets map[*Tensor]bool) []*Tensor {
	reaches := make(map[*Tensor]bool)
	visited := make(map[*Tensor]bool)
	order := make([]*Tensor, 0)

	var visit func(n *Tensor) bool
	visit = func(n *Tensor) bool {
		if visited[n] {
			return reaches[n]
		}
		visited[n] = true

		if targets[n] {
			reaches[n] = true
			order = append(order, n)
			return true
		}
		if !n.requiresGrad {
			return false
		}

		found := false
		for _, p := range n.parents {
			if visit(p) {
				found = true
			}
		}
		if found {
			reaches[n] = true
			order = append(order, n)
		}
		return found
	}

	visit(out)
	return order
}

// Backward accumulates d(loss)/d(p) into p.Grad() for every parameter.
func Backward(loss *Tensor, params []*Tensor) error {
	grads, err := Grad(loss, params, false)
	if err != nil {
		return err
	}
	for i, p := range params {
		if p.grad == nil {
			p.grad = grads[i].Clone()
			continue
		}
		p.grad = Add(p.grad, grads[i]).Detach()
	}
	return nil
}
