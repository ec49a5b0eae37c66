package nn

import (
	"fmt"

	"github.com/born-ml/positnn/internal/posit"
	"github.com/born-ml/positnn/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Backward walks the
// chain in reverse, handing every child the record its own Forward produced.
//
// Example:
//
//	model := nn.NewSequential[O, F, B](
//	    nn.NewLinear(pol, 784, 128, rng),
//	    nn.NewReLU(pol),
//	    nn.NewLinear(pol, 128, 10, rng),
//	)
//
//	y, rec := model.Forward(x)
//	_, err := model.Backward(loss.Derivative(), rec)
type Sequential[O, F, B posit.Format] struct {
	mode
	modules []Module[O, F, B]
}

type sequentialState struct {
	records []*Record
}

// NewSequential creates a new Sequential container in training mode.
func NewSequential[O, F, B posit.Format](modules ...Module[O, F, B]) *Sequential[O, F, B] {
	s := &Sequential[O, F, B]{modules: modules}
	s.Train()
	return s
}

// Forward applies all modules in sequence.
func (s *Sequential[O, F, B]) Forward(x *tensor.Tensor[F]) (*tensor.Tensor[F], *Record) {
	records := make([]*Record, len(s.modules))
	out := x
	for i, m := range s.modules {
		out, records[i] = m.Forward(out)
	}
	return out, newRecord(s, sequentialState{records: records})
}

// Backward propagates delta through the modules in reverse order.
func (s *Sequential[O, F, B]) Backward(delta *tensor.Tensor[B], rec *Record) (*tensor.Tensor[B], error) {
	st, err := take[sequentialState](rec, s)
	if err != nil {
		return nil, fmt.Errorf("Sequential.Backward: %w", err)
	}
	for i := len(s.modules) - 1; i >= 0; i-- {
		delta, err = s.modules[i].Backward(delta, st.records[i])
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
	}
	return delta, nil
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[O, F, B]) Parameters() []*Parameter[O] {
	var params []*Parameter[O]
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Train switches the container and every child to training mode.
func (s *Sequential[O, F, B]) Train() {
	s.mode.Train()
	for _, m := range s.modules {
		m.Train()
	}
}

// Eval switches the container and every child to evaluation mode.
func (s *Sequential[O, F, B]) Eval() {
	s.mode.Eval()
	for _, m := range s.modules {
		m.Eval()
	}
}

// Add appends a module to the sequence.
func (s *Sequential[O, F, B]) Add(m Module[O, F, B]) {
	s.modules = append(s.modules, m)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[O, F, B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[O, F, B]) Module(index int) Module[O, F, B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}
