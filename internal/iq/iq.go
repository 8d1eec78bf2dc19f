package iq

import (
	"fmt"
	"math"
)

const (
	// Midpoint is the RTL-SDR zero level of an unsigned 8-bit sample (127/128 = no signal).
	Midpoint = 127.5

	// SilencePower is the lowest mean |z|² of a centered capture, reached by pure 127/128 silence.
	SilencePower = 0.5

	// Centered subtracts Midpoint from every unsigned byte, keeping the raw amplitude scale.
	Centered Convention = "centered"

	// SignedNative reinterprets every byte as a signed 8-bit integer without any scaling.
	SignedNative Convention = "signed"

	// UnsignedNormalized subtracts Midpoint and divides by it, mapping samples into [-1, 1].
	UnsignedNormalized Convention = "normalized"
)

var validConventions = map[Convention]struct{}{
	Centered:           {},
	SignedNative:       {},
	UnsignedNormalized: {},
}

// Convention selects how a pair of raw capture bytes becomes a complex sample.
type Convention string

func (c Convention) String() string {
	return string(c)
}

func (c Convention) Validate() error {
	if _, ok := validConventions[c]; !ok {
		return fmt.Errorf("iq: unknown sample convention '%s'", c)
	}
	return nil
}

// Component converts a single raw byte into an I or Q value.
func (c Convention) Component(b byte) float64 {
	switch c {
	case SignedNative:
		return float64(int8(b))
	case UnsignedNormalized:
		return (float64(b) - Midpoint) / Midpoint
	default:
		return float64(b) - Midpoint
	}
}

// Sample converts one interleaved (I, Q) byte pair into a complex sample.
func (c Convention) Sample(i, q byte) complex128 {
	return complex(c.Component(i), c.Component(q))
}

// PairCount returns the number of whole (I, Q) pairs in n bytes. A trailing odd byte is not counted.
func PairCount(n int) int {
	return n / 2
}

// Samples converts an interleaved capture into complex samples. A trailing odd byte is dropped.
func Samples(p []byte, c Convention) []complex128 {
	n := PairCount(len(p))
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		out[k] = c.Sample(p[2*k], p[2*k+1])
	}
	return out
}

// Amplitudes returns |z| of every whole (I, Q) pair in p.
func Amplitudes(p []byte, c Convention) []float64 {
	n := PairCount(len(p))
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = math.Hypot(c.Component(p[2*k]), c.Component(p[2*k+1]))
	}
	return out
}

// MeanPower returns mean(|z|²) over the whole (I, Q) pairs in p and the number of pairs used.
// It returns zero pairs when p holds less than one full pair.
func MeanPower(p []byte, c Convention) (power float64, pairs int) {
	pairs = PairCount(len(p))
	if pairs == 0 {
		return 0, 0
	}

	var sum float64
	for k := 0; k < pairs; k++ {
		i := c.Component(p[2*k])
		q := c.Component(p[2*k+1])
		sum += i*i + q*q
	}
	return sum / float64(pairs), pairs
}
