// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size FFT scratch
buffers and to check analysis window sizes.

Both functions are constant time, allocation free and safe to call from the
audio callback.

Usage:

	// Padded FFT length for a 1024 sample window with 512 samples of padding.
	fftLen := bitint.NextPowerOfTwo(1024 + 512) // 2048

	// Window sizes that need no padding for a radix-2 transform.
	ok := bitint.IsPowerOfTwo(windowSize)

NextPowerOfTwo works on size-1 so that exact powers of two map to
themselves: bits.Len(7) = 3 and 1<<3 = 8, whereas bits.Len(8) = 4 would
double the input.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Zero and
// negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	1536   2048
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has a single bit set, so clearing its lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
