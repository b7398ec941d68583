package services

// Minimum sample sizes below which a statistic is flagged low confidence.
const (
	MinSessionSample = 10
	MinTimedSample   = 5
	MinShareEvents   = 3
)

// Confidence qualifies a derived statistic. Values below threshold are
// still reported; LowConfidence tells the consumer to render a caveat.
type Confidence struct {
	SampleSize    int  `json:"sampleSize"`
	MinSampleSize int  `json:"minSampleSize"`
	LowConfidence bool `json:"lowConfidence"`
}

func gate(sample, minimum int) Confidence {
	return Confidence{SampleSize: sample, MinSampleSize: minimum, LowConfidence: sample < minimum}
}

// sessionConfidence gates session-based distributions.
func sessionConfidence(sessions int) Confidence {
	return gate(sessions, MinSessionSample)
}

// timedConfidence gates reading-time statistics.
func timedConfidence(timed int) Confidence {
	return gate(timed, MinTimedSample)
}

// shareConfidence gates share statistics: enough share events or enough
// sessions in the denominator.
func shareConfidence(shares, sessions int) Confidence {
	c := gate(shares, MinShareEvents)
	if sessions >= MinSessionSample {
		c.LowConfidence = false
	}
	return c
}
