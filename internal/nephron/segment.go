// Package nephron implements the segmented mass-balance transport engine.
// Filtered plasma is folded through six tubule segments in physiological order,
// each removing (or, for negative fractions, adding) a fraction of every species.
package nephron

// Segment identifies one tubule section. Order is the order fluid passes through them.
type Segment uint8

const (
	Proximal           Segment = iota // PCT
	DescendingLimb                    // thin descending limb of Henle
	ThickAscendingLimb                // TAL, ends at the macula densa
	Distal                            // DCT
	CorticalDuct                      // cortical collecting duct
	MedullaryDuct                     // medullary collecting duct
)

// SegmentCount is the number of tubule segments.
const SegmentCount = 6

// StreamCount is the number of streams in a result: the filtrate plus one per segment output.
const StreamCount = SegmentCount + 1

var segmentNames = [SegmentCount]string{
	"proximal", "descending_limb", "thick_ascending_limb", "distal", "cortical_duct", "medullary_duct",
}

var segmentLabels = [SegmentCount]string{"PCT", "DL", "TAL", "DCT", "CCD", "MCD"}

// Segments returns every segment in flow order.
func Segments() []Segment {
	return []Segment{Proximal, DescendingLimb, ThickAscendingLimb, Distal, CorticalDuct, MedullaryDuct}
}

// Name returns the snake_case segment name used in scenario files.
func (s Segment) Name() string {
	if int(s) < SegmentCount {
		return segmentNames[s]
	}
	return "unknown"
}

// Label returns the clinical abbreviation ("PCT").
func (s Segment) Label() string {
	if int(s) < SegmentCount {
		return segmentLabels[s]
	}
	return "?"
}

func (s Segment) String() string { return s.Label() }

// ParseSegment resolves a segment from its name or label.
func ParseSegment(v string) (Segment, bool) {
	for i := 0; i < SegmentCount; i++ {
		if v == segmentNames[i] || v == segmentLabels[i] {
			return Segment(i), true
		}
	}
	return 0, false
}
