package internal

import "golang.org/x/exp/constraints"

// InRange reports lo <= v && v <= hi.
func InRange[T constraints.Integer](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// OneOf reports whether v is an element of set.
func OneOf[T constraints.Integer](v T, set ...T) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// IndexOf returns the index of v in set or -1.
func IndexOf[T constraints.Integer](v T, set ...T) int {
	for i, s := range set {
		if v == s {
			return i
		}
	}
	return -1
}
