// Package graph implements a mutable dataflow graph of tensors with
// reverse-mode differentiation.
//
// Nodes are identified by NodeID and are either leaves (allocated tensors
// such as parameters and inputs) or operator applications over earlier nodes.
// Because Apply only accepts existing ids, id order is a topological order:
// Forward walks ids ascending, Backward walks them descending.
//
// Typical use:
//
//	g := graph.New()
//	w := g.AllocRandom(rng, tensor.Shape{4, 8})
//	x := g.Alloc(tensor.Zeros(tensor.Shape{2, 4}))
//	y, err := g.Apply(graph.MatMulOp{}, x, w)
//	...
//	err = g.Forward(true)
//	g.ResetGradients()
//	loss, err := g.Backward(y, graph.CrossEntropy{Targets: targets})
//	err = g.Optimize(opt, []graph.NodeID{w}, lr)
package graph

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/tensor"
)

// Common errors.
var (
	ErrUnknownNode  = errors.New("unknown node")
	ErrNotLeaf      = errors.New("node is not a leaf")
	ErrNotEvaluated = errors.New("graph has not been evaluated")
)

// NodeID identifies a node within a graph and all of its clones.
type NodeID int

type node struct {
	op     Operator // nil for leaves
	inputs []NodeID
	shape  tensor.Shape
	value  *tensor.Tensor
	grad   *tensor.Tensor
	cache  any // Operator-private state from the last forward pass
}

// Graph is a mutable computation graph. A Graph is not safe for concurrent
// use; parallel work operates on independent clones.
type Graph struct {
	nodes     []node
	rng       *rand.Rand // Drives dropout during training forwards
	evaluated bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Alloc adds a leaf node holding value.
func (g *Graph) Alloc(value *tensor.Tensor) NodeID {
	g.nodes = append(g.nodes, node{shape: value.Shape(), value: value})
	return NodeID(len(g.nodes) - 1)
}

// AllocRandom adds a leaf node initialized uniformly in [-1, 1).
func (g *Graph) AllocRandom(rng *rand.Rand, shape tensor.Shape) NodeID {
	return g.Alloc(tensor.Uniform(rng, shape, -1, 1))
}

// Apply adds a node computing op over inputs. The output shape is checked
// eagerly so topology errors surface at construction time.
func (g *Graph) Apply(op Operator, inputs ...NodeID) (NodeID, error) {
	shapes := make([]tensor.Shape, len(inputs))
	for i, id := range inputs {
		n, err := g.node(id)
		if err != nil {
			return 0, err
		}
		shapes[i] = n.shape
	}

	shape, err := op.Shape(shapes)
	if err != nil {
		return 0, fmt.Errorf("graph: apply %s: %w", op.Name(), err)
	}

	g.nodes = append(g.nodes, node{
		op:     op,
		inputs: append([]NodeID(nil), inputs...),
		shape:  shape,
	})
	g.evaluated = false
	return NodeID(len(g.nodes) - 1), nil
}

// Clone returns an independent copy with the same ids. Leaf values are
// shared with g until either graph replaces them through Bind or SetValue;
// computed values, gradients and operator caches are private to the clone.
// The clone's dropout source is unseeded until Seed is called.
func (g *Graph) Clone() *Graph {
	nodes := make([]node, len(g.nodes))
	for i, n := range g.nodes {
		nodes[i] = node{op: n.op, inputs: n.inputs, shape: n.shape}
		if n.op == nil {
			nodes[i].value = n.value
		}
	}
	return &Graph{nodes: nodes}
}

// Seed resets the random source used by dropout.
func (g *Graph) Seed(seed int64) {
	g.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // Dropout masks are not security-sensitive
}

// Bind overwrites the leaf input with rows of the leaf table: row i of input
// becomes row ids[i] of table. len(ids) must equal the input's row count.
func (g *Graph) Bind(input, table NodeID, ids []int) error {
	in, err := g.leaf(input)
	if err != nil {
		return err
	}
	tab, err := g.leaf(table)
	if err != nil {
		return err
	}

	rows, cols := in.shape.Matrix()
	tabRows, tabCols := tab.shape.Matrix()
	if cols != tabCols || len(ids) != rows {
		return fmt.Errorf("graph: bind: %w", &tensor.ShapeError{
			Op:      "bind",
			Shapes:  []tensor.Shape{in.shape, tab.shape, {len(ids)}},
			Details: "input must have one row per id and the table's width",
		})
	}

	out := tensor.Zeros(in.shape)
	dst := out.Data()
	src := tab.value.Data()
	for i, id := range ids {
		if id < 0 || id >= tabRows {
			return fmt.Errorf("graph: bind: id %d out of range [0, %d)", id, tabRows)
		}
		copy(dst[i*cols:(i+1)*cols], src[id*cols:(id+1)*cols])
	}
	in.value = out
	g.evaluated = false
	return nil
}

// Forward evaluates every operator node in id order. training enables
// dropout.
func (g *Graph) Forward(training bool) error {
	if training && g.rng == nil {
		g.Seed(1)
	}
	ctx := ForwardContext{Training: training, Rand: g.rng}

	for i := range g.nodes {
		n := &g.nodes[i]
		if n.op == nil {
			continue
		}
		inputs := g.inputValues(n)
		out, cache, err := n.op.Forward(ctx, inputs)
		if err != nil {
			g.evaluated = false
			return fmt.Errorf("graph: forward node %d (%s): %w", i, n.op.Name(), err)
		}
		n.value = out
		n.cache = cache
	}
	g.evaluated = true
	return nil
}

// ResetGradients zeroes every gradient buffer.
func (g *Graph) ResetGradients() {
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.grad == nil {
			n.grad = tensor.Zeros(n.shape)
			continue
		}
		n.grad.Fill(0)
	}
}

// Backward evaluates loss on the output node, seeds the output gradient
// with the loss gradient and propagates it to every node, accumulating into
// the existing gradient buffers. It returns the scalar loss. Call
// ResetGradients first unless accumulation is intended.
func (g *Graph) Backward(output NodeID, loss Loss) (float32, error) {
	if _, err := g.node(output); err != nil {
		return 0, err
	}
	if !g.evaluated {
		return 0, ErrNotEvaluated
	}

	for i := range g.nodes {
		if g.nodes[i].grad == nil {
			g.nodes[i].grad = tensor.Zeros(g.nodes[i].shape)
		}
	}

	value, seed, err := loss.Evaluate(g.nodes[output].value)
	if err != nil {
		return 0, fmt.Errorf("graph: loss: %w", err)
	}
	if err := tensor.AddInPlace(g.nodes[output].grad, seed); err != nil {
		return 0, fmt.Errorf("graph: loss gradient: %w", err)
	}

	reached := make([]bool, output+1)
	reached[output] = true
	for i := int(output); i >= 0; i-- {
		n := &g.nodes[i]
		if n.op == nil || !reached[i] {
			continue
		}
		grads, err := n.op.Backward(g.inputValues(n), n.value, n.cache, n.grad)
		if err != nil {
			return 0, fmt.Errorf("graph: backward node %d (%s): %w", i, n.op.Name(), err)
		}
		for j, in := range n.inputs {
			if err := tensor.AddInPlace(g.nodes[in].grad, grads[j]); err != nil {
				return 0, fmt.Errorf("graph: backward node %d (%s): %w", i, n.op.Name(), err)
			}
			reached[in] = true
		}
	}
	return value, nil
}

// Value returns the current value of a node. The tensor is owned by the
// graph and must not be mutated.
func (g *Graph) Value(id NodeID) (*tensor.Tensor, error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	if n.value == nil {
		return nil, fmt.Errorf("graph: node %d: %w", id, ErrNotEvaluated)
	}
	return n.value, nil
}

// SetValue replaces the value of a leaf node.
func (g *Graph) SetValue(id NodeID, value *tensor.Tensor) error {
	n, err := g.leaf(id)
	if err != nil {
		return err
	}
	if !n.shape.Equal(value.Shape()) {
		return fmt.Errorf("graph: set value of node %d: %w", id, &tensor.ShapeError{
			Op: "set_value", Shapes: []tensor.Shape{n.shape, value.Shape()},
		})
	}
	n.value = value.Clone()
	g.evaluated = false
	return nil
}

// Gradient returns the gradient buffer of a node, allocating a zero buffer
// if none exists yet. The tensor is owned by the graph.
func (g *Graph) Gradient(id NodeID) (*tensor.Tensor, error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	if n.grad == nil {
		n.grad = tensor.Zeros(n.shape)
	}
	return n.grad, nil
}

// SetGradient overwrites the gradient buffer of a node.
func (g *Graph) SetGradient(id NodeID, grad *tensor.Tensor) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	if !n.shape.Equal(grad.Shape()) {
		return fmt.Errorf("graph: set gradient of node %d: %w", id, &tensor.ShapeError{
			Op: "set_gradient", Shapes: []tensor.Shape{n.shape, grad.Shape()},
		})
	}
	n.grad = grad
	return nil
}

// Shape returns the shape of a node.
func (g *Graph) Shape(id NodeID) (tensor.Shape, error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	return n.shape.Clone(), nil
}

// ElementCount returns the number of elements of a node.
func (g *Graph) ElementCount(id NodeID) (int, error) {
	n, err := g.node(id)
	if err != nil {
		return 0, err
	}
	return n.shape.NumElements(), nil
}

// Optimize applies one optimizer update to the given leaf parameters using
// their current gradient buffers. Values are updated in place, so no clone
// of g may be in use while Optimize runs.
func (g *Graph) Optimize(opt optim.Optimizer, params []NodeID, lr float32) error {
	ps := make([]optim.Param, len(params))
	for i, id := range params {
		n, err := g.leaf(id)
		if err != nil {
			return err
		}
		ps[i] = optim.Param{ID: int(id), Value: n.value, Grad: n.grad}
	}
	if err := opt.Step(ps, lr); err != nil {
		return fmt.Errorf("graph: optimize: %w", err)
	}
	g.evaluated = false
	return nil
}

func (g *Graph) node(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("graph: node %d: %w", id, ErrUnknownNode)
	}
	return &g.nodes[id], nil
}

func (g *Graph) leaf(id NodeID) (*node, error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	if n.op != nil {
		return nil, fmt.Errorf("graph: node %d: %w", id, ErrNotLeaf)
	}
	return n, nil
}

func (g *Graph) inputValues(n *node) []*tensor.Tensor {
	values := make([]*tensor.Tensor, len(n.inputs))
	for i, id := range n.inputs {
		values[i] = g.nodes[id].value
	}
	return values
}
