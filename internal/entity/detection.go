package entity

// RawDetection is one object as reported by a detection capability, before the
// class index is resolved to a label.
type RawDetection struct {
	ClassIndex int
	Confidence float64
	BBox       [4]float64 // x1, y1, x2, y2 in source pixels
}

// Detection is the wire form of one recognized object.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}
