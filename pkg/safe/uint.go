// Package safe provides checked unsigned arithmetic for base-unit amounts.
package safe

import (
	"errors"
	"fmt"
)

// ErrOverflow is returned when a result does not fit the operand type.
var ErrOverflow = errors.New("integer overflow")

// Add returns a+b or ErrOverflow when the sum wraps.
func Add[T ~uint32 | ~uint64](a, b T) (T, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("add %d + %d: %w", a, b, ErrOverflow)
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow when b exceeds a.
func Sub[T ~uint32 | ~uint64](a, b T) (T, error) {
	if b > a {
		return 0, fmt.Errorf("sub %d - %d: %w", a, b, ErrOverflow)
	}
	return a - b, nil
}

// Sum adds vs left to right and stops at the first overflow.
func Sum[T ~uint32 | ~uint64](vs ...T) (T, error) {
	var total T
	for _, v := range vs {
		next, err := Add(total, v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
