package models

// BeltRank represents a kyu/dan grading colour.
type BeltRank string

// Belt ranks in promotion order.
const (
	BeltWhite  BeltRank = "white"
	BeltYellow BeltRank = "yellow"
	BeltOrange BeltRank = "orange"
	BeltGreen  BeltRank = "green"
	BeltBlue   BeltRank = "blue"
	BeltPurple BeltRank = "purple"
	BeltBrown  BeltRank = "brown"
	BeltRed    BeltRank = "red"
	BeltBlack  BeltRank = "black"
)

var beltOrder = map[BeltRank]int{
	BeltWhite:  0,
	BeltYellow: 1,
	BeltOrange: 2,
	BeltGreen:  3,
	BeltBlue:   4,
	BeltPurple: 5,
	BeltBrown:  6,
	BeltRed:    7,
	BeltBlack:  8,
}

// Valid returns true when the rank is a recognised belt colour.
func (b BeltRank) Valid() bool {
	_, ok := beltOrder[b]
	return ok
}

// Ordinal returns the position of the rank in promotion order, -1 when unknown.
func (b BeltRank) Ordinal() int {
	if ord, ok := beltOrder[b]; ok {
		return ord
	}
	return -1
}

// Within reports whether the rank falls inside the inclusive [min, max] range.
// Empty bounds are open ended.
func (b BeltRank) Within(min, max BeltRank) bool {
	ord := b.Ordinal()
	if ord < 0 {
		return false
	}
	if min != "" && min.Valid() && ord < min.Ordinal() {
		return false
	}
	if max != "" && max.Valid() && ord > max.Ordinal() {
		return false
	}
	return true
}
