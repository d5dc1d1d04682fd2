package physio

// Deviation classifies a measured value against a setpoint.
type Deviation int8

const (
	Low    Deviation = -1
	InBand Deviation = 0
	High   Deviation = 1
)

func (d Deviation) String() string {
	switch d {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "in_band"
	}
}

// Band is a symmetric dead-band around a setpoint.
// Values exactly on the edge count as in band.
type Band struct {
	Tolerance float64
}

// Classify reports whether value sits below, inside, or above setpoint ± Tolerance.
func (b Band) Classify(value, setpoint float64) Deviation {
	if value > setpoint+b.Tolerance {
		return High
	}
	if value < setpoint-b.Tolerance {
		return Low
	}
	return InBand
}

// Clamp bounds x into [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
