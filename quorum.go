package synod

import (
	"sort"
)

// Majority is the smallest number of processes out of n that intersects
// every other majority.
func Majority(n int) int {
	return n/2 + 1
}

// IsMajority reports whether count processes out of n form a majority.
// Both the gather and the ack phase use it.
func IsMajority(count, n int) bool {
	return count > n/2
}

// MaxFaults is the largest number of crashed processes out of n that still
// leaves a live majority.
func MaxFaults(n int) int {
	return (n - 1) / 2
}

// FirstBallot is the first ballot process index issues in a group of n.
func FirstBallot(index, n int) Ballot {
	return Ballot(index)
}

// NextBallot is the ballot following b for its owner in a group of n.
func NextBallot(b Ballot, n int) Ballot {
	return b + Ballot(n)
}

// BallotOwner returns the index of the process that issued b.
func BallotOwner(b Ballot, n int) int {
	if b < 0 || n < 1 {
		return NoSender
	}
	return int(b % Ballot(n))
}

// accepted is a process's accepted state as reported in a Gather.
type accepted struct {
	ballot   Ballot
	estimate Value
}

// pickEstimate returns the estimate accepted under the strictly highest
// ballot, or fallback when nothing was accepted yet. Entries are scanned in
// index order so ties resolve the same way regardless of arrival order.
func pickEstimate(states map[int]accepted, fallback Value) Value {
	indices := make([]int, 0, len(states))
	for i := range states {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	best, value := NoBallot, fallback
	for _, i := range indices {
		s := states[i]
		if s.ballot > best && s.estimate != NoValue {
			best, value = s.ballot, s.estimate
		}
	}
	return value
}
