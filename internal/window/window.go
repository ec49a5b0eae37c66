// Package window precomputes the index correspondences between output
// positions, input positions and kernel taps of a 2-D spatial operator.
//
// A Window stores three parallel sequences. Group k covers the entries
// [WindowIdx[k], WindowIdx[k+1]) of MapWindow and KernelWindow. What a group
// and each entry refer to depends on the Kind the window was built with.
// Taps that fall outside the input (into padding or between dilated input
// elements) are omitted rather than stored as zeros.
package window

import "fmt"

// Kind selects how a window groups the (output, input, tap) triples.
type Kind uint8

const (
	// OutputMajor groups by output position. MapWindow holds input positions
	// and KernelWindow holds kernel taps.
	OutputMajor Kind = iota
	// InputMajor groups by input position. MapWindow holds output positions
	// and KernelWindow holds kernel taps.
	InputMajor
	// KernelMajor groups by kernel tap. MapWindow holds input positions and
	// KernelWindow holds output positions.
	KernelMajor
)

func (k Kind) String() string {
	switch k {
	case OutputMajor:
		return "output-major"
	case InputMajor:
		return "input-major"
	case KernelMajor:
		return "kernel-major"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Geometry describes one operator configuration over a single channel.
type Geometry struct {
	InH, InW         int
	KernelH, KernelW int
	Stride           int
	Padding          int
	// Dilation inserts Dilation-1 empty rows and columns between input
	// elements. Zero means 1.
	Dilation int
	// ExtraH and ExtraW add padding after the last row and column only.
	ExtraH, ExtraW int
}

func (g Geometry) normalized() Geometry {
	if g.Stride <= 0 {
		g.Stride = 1
	}
	if g.Dilation <= 0 {
		g.Dilation = 1
	}
	return g
}

// Validate reports geometry that cannot produce an output.
func (g Geometry) Validate() error {
	g = g.normalized()
	switch {
	case g.InH <= 0 || g.InW <= 0 || g.KernelH <= 0 || g.KernelW <= 0:
		return fmt.Errorf("window: non-positive extent in %+v", g)
	case g.Padding < 0 || g.ExtraH < 0 || g.ExtraW < 0:
		return fmt.Errorf("window: negative padding in %+v", g)
	}
	if g.OutH() <= 0 || g.OutW() <= 0 {
		return fmt.Errorf("window: kernel %dx%d larger than padded input in %+v", g.KernelH, g.KernelW, g)
	}
	return nil
}

func (g Geometry) span(in, extra, k int) int {
	g = g.normalized()
	dilated := (in-1)*g.Dilation + 1
	return (dilated+2*g.Padding+extra-k)/g.Stride + 1
}

// OutH is (in + 2*padding - kernel)/stride + 1 over the dilated input.
func (g Geometry) OutH() int { return g.span(g.InH, g.ExtraH, g.KernelH) }

// OutW is (in + 2*padding - kernel)/stride + 1 over the dilated input.
func (g Geometry) OutW() int { return g.span(g.InW, g.ExtraW, g.KernelW) }

// Window is an immutable precomputed index map.
type Window struct {
	Kind     Kind
	Geometry Geometry
	OutH     int
	OutW     int

	MapWindow    []int
	KernelWindow []int
	WindowIdx    []int
}

// Groups returns the number of groups.
func (w *Window) Groups() int {
	return len(w.WindowIdx) - 1
}

// Bounds returns the entry range of group k.
func (w *Window) Bounds(k int) (begin, end int) {
	return w.WindowIdx[k], w.WindowIdx[k+1]
}

// Triple is one (output position, input position, kernel tap) correspondence.
type Triple struct {
	Output, Input, Kernel int
}

// visit enumerates every valid triple in output-major, kernel-row-major order.
func visit(g Geometry, f func(t Triple)) (outH, outW int) {
	g = g.normalized()
	outH, outW = g.OutH(), g.OutW()
	dh := (g.InH-1)*g.Dilation + 1
	dw := (g.InW-1)*g.Dilation + 1

	out := 0
	for oy := range outH {
		for ox := range outW {
			for ky := range g.KernelH {
				y := oy*g.Stride - g.Padding + ky
				if y < 0 || y >= dh || y%g.Dilation != 0 {
					continue
				}
				for kx := range g.KernelW {
					x := ox*g.Stride - g.Padding + kx
					if x < 0 || x >= dw || x%g.Dilation != 0 {
						continue
					}
					f(Triple{
						Output: out,
						Input:  (y/g.Dilation)*g.InW + x/g.Dilation,
						Kernel: ky*g.KernelW + kx,
					})
				}
			}
			out++
		}
	}
	return outH, outW
}

// Forward builds the output-major window used by convolution and pooling.
func Forward(g Geometry) *Window {
	g = g.normalized()
	w := &Window{Kind: OutputMajor, Geometry: g}
	n := g.OutH() * g.OutW() * g.KernelH * g.KernelW
	w.MapWindow = make([]int, 0, n)
	w.KernelWindow = make([]int, 0, n)
	w.WindowIdx = make([]int, 0, g.OutH()*g.OutW()+1)

	last := -1
	w.OutH, w.OutW = visit(g, func(t Triple) {
		for last < t.Output {
			w.WindowIdx = append(w.WindowIdx, len(w.MapWindow))
			last++
		}
		w.MapWindow = append(w.MapWindow, t.Input)
		w.KernelWindow = append(w.KernelWindow, t.Kernel)
	})
	for last < w.OutH*w.OutW-1 {
		w.WindowIdx = append(w.WindowIdx, len(w.MapWindow))
		last++
	}
	w.WindowIdx = append(w.WindowIdx, len(w.MapWindow))
	return w
}

// Inverse builds the input-major window used to route output gradients back
// to the input positions that produced them.
func Inverse(g Geometry) *Window {
	g = g.normalized()
	return grouped(g, InputMajor, g.InH*g.InW,
		func(t Triple) (int, int, int) { return t.Input, t.Output, t.Kernel })
}

// ByKernel builds the kernel-major window used by the weight gradient: for
// each tap it lists the input positions and the output positions they meet.
func ByKernel(g Geometry) *Window {
	g = g.normalized()
	return grouped(g, KernelMajor, g.KernelH*g.KernelW,
		func(t Triple) (int, int, int) { return t.Kernel, t.Input, t.Output })
}

func grouped(g Geometry, kind Kind, groups int, split func(Triple) (group, a, b int)) *Window {
	counts := make([]int, groups+1)
	var triples []Triple
	outH, outW := visit(g, func(t Triple) {
		grp, _, _ := split(t)
		counts[grp+1]++
		triples = append(triples, t)
	})
	for i := 1; i <= groups; i++ {
		counts[i] += counts[i-1]
	}

	w := &Window{
		Kind:         kind,
		Geometry:     g,
		OutH:         outH,
		OutW:         outW,
		MapWindow:    make([]int, len(triples)),
		KernelWindow: make([]int, len(triples)),
		WindowIdx:    append([]int(nil), counts...),
	}
	// Stable bucket fill keeps output-major order inside each group.
	next := counts[:groups]
	for _, t := range triples {
		grp, a, b := split(t)
		w.MapWindow[next[grp]] = a
		w.KernelWindow[next[grp]] = b
		next[grp]++
	}
	return w
}

// Triples returns every (output, input, tap) correspondence the window
// encodes, in storage order.
func (w *Window) Triples() []Triple {
	out := make([]Triple, 0, len(w.MapWindow))
	for k := range w.Groups() {
		begin, end := w.Bounds(k)
		for i := begin; i < end; i++ {
			a, b := w.MapWindow[i], w.KernelWindow[i]
			switch w.Kind {
			case OutputMajor:
				out = append(out, Triple{Output: k, Input: a, Kernel: b})
			case InputMajor:
				out = append(out, Triple{Output: a, Input: k, Kernel: b})
			case KernelMajor:
				out = append(out, Triple{Output: b, Input: a, Kernel: k})
			}
		}
	}
	return out
}
