// SPDX-License-Identifier: MIT
/*
Package bitint provides the integer helpers used to size analysis
windows and sample batches. Spectrum windows must be powers of two for
the FFT, and the segmenter constantly rounds sample counts up to whole
steps or whole windows.

Design Principles:
- Zero Allocations: All operations use stack memory only
- Predictable Performance: O(1) constant time operations
- Real-Time Safe: No locks, syscalls, or blocking operations

Usage:

	// Verify FFT window size is valid
	isValid := bitint.IsPowerOfTwo(windowSize)

	// Number of step-sized chunks needed to hold a window
	chunks := bitint.CeilDiv(windowSize, stepSize) // 4096/1024 -> 4

	// Round a pending sample count up to whole windows
	batch := bitint.RoundUp(5000, 4096) // 8192

----------------------------------------------------------------------

NextPowerOfTwo returns the next power of 2 greater than or equal to
size. The subtraction (size-1) is critical, without it powers of 2
would be doubled:

	size = 8, size-1 = 7 (0111), bits.Len(7) = 3, 1<<3 = 8
	size = 8, bits.Len(8) = 4 (1000), 1<<4 = 16 (wrong)
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2 using bit manipulation.
// Powers of 2 have exactly one bit set, so n & (n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b.
// It returns 0 when b is not positive.
func CeilDiv(a, b int) int {
	if b <= 0 || a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// RoundUp rounds n up to the next multiple of m. Non-positive n yields 0.
func RoundUp(n, m int) int {
	return CeilDiv(n, m) * m
}
