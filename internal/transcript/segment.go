package transcript

import "time"

// Segment is one timestamped chunk of recognizer output. Whether it is
// confirmed or still revisable is expressed by which list it travels in.
type Segment struct {
	Text        string
	Start       time.Duration
	End         time.Duration
	Probability float64
}
