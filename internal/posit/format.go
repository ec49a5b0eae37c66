package posit

import "fmt"

// Format is a type-level posit configuration. Implementations are zero-size
// marker types, so tensors and layers can be parameterized by precision and
// values of different precisions cannot be mixed by accident.
type Format interface {
	NBits() int
	ES() int
}

// Supported configurations. Any (nbits, es) with 3 <= nbits <= 32 and
// 0 <= es <= 3 works; these are the ones used throughout the repository.
type (
	P8E0  struct{}
	P8E1  struct{}
	P8E2  struct{}
	P10E1 struct{}
	P12E1 struct{}
	P16E1 struct{}
	P16E2 struct{}
	P32E2 struct{}
	P32E3 struct{}
)

func (P8E0) NBits() int  { return 8 }
func (P8E0) ES() int     { return 0 }
func (P8E1) NBits() int  { return 8 }
func (P8E1) ES() int     { return 1 }
func (P8E2) NBits() int  { return 8 }
func (P8E2) ES() int     { return 2 }
func (P10E1) NBits() int { return 10 }
func (P10E1) ES() int    { return 1 }
func (P12E1) NBits() int { return 12 }
func (P12E1) ES() int    { return 1 }
func (P16E1) NBits() int { return 16 }
func (P16E1) ES() int    { return 1 }
func (P16E2) NBits() int { return 16 }
func (P16E2) ES() int    { return 2 }
func (P32E2) NBits() int { return 32 }
func (P32E2) ES() int    { return 2 }
func (P32E3) NBits() int { return 32 }
func (P32E3) ES() int    { return 3 }

// Config is the value-level description of a posit format.
type Config struct {
	NBits int `cbor:"nbits" json:"nbits"`
	ES    int `cbor:"es" json:"es"`
}

// ConfigOf returns the configuration of format F.
func ConfigOf[F Format]() Config {
	var f F
	return Config{NBits: f.NBits(), ES: f.ES()}
}

// Validate reports whether the configuration can be represented.
func (c Config) Validate() error {
	if c.NBits < 3 || c.NBits > 32 {
		return fmt.Errorf("posit: nbits %d out of range [3, 32]", c.NBits)
	}
	if c.ES < 0 || c.ES > 3 {
		return fmt.Errorf("posit: es %d out of range [0, 3]", c.ES)
	}
	return nil
}

// MaxExp is the binary exponent of maxpos. minpos is 2^-MaxExp.
func (c Config) MaxExp() int {
	return (c.NBits - 2) << c.ES
}

// Bytes is the number of bytes needed to store one bit pattern.
func (c Config) Bytes() int {
	return (c.NBits + 7) / 8
}

func (c Config) mask() uint32 {
	return uint32(uint64(1)<<c.NBits - 1)
}

func (c Config) narBits() uint32 {
	return uint32(1) << (c.NBits - 1)
}

// String returns the conventional posit<nbits,es> spelling.
func (c Config) String() string {
	return fmt.Sprintf("posit<%d,%d>", c.NBits, c.ES)
}
