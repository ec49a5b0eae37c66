package nn

import "github.com/born-ml/positnn/internal/posit"

// SetFactors installs scale factors directly and marks s calibrated.
func (s *BackScale[O, F, B]) SetFactors(scales, acc []posit.Posit[O]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.scales, scales)
	copy(s.acc, acc)
	s.calibrated = true
}

// SetFactors installs scale factors directly.
func (s *AdaptiveScale[O, F, B]) SetFactors(scales, acc []posit.Posit[O]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.scales, scales)
	copy(s.acc, acc)
}
