package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Label int

const (
	LabelBenign Label = 0
	LabelBurst  Label = 1
)

func (l Label) String() string {
	switch l {
	case LabelBenign:
		return "benign"
	case LabelBurst:
		return "burst"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

func (l Label) Valid() bool {
	return l == LabelBenign || l == LabelBurst
}

type Features struct {
	RequestRate    float64 `json:"request_rate"`
	UniqueURLProxy float64 `json:"unique_urls_proxy"`
}

// Vector lays the features out in the order the classifier artifact was
// fitted with: encoded source, request rate, unique URL proxy.
func (f Features) Vector(encodedID int) [3]float64 {
	return [3]float64{float64(encodedID), f.RequestRate, f.UniqueURLProxy}
}

type Annotation struct {
	Features
	Prediction Label `json:"prediction"`
}

type Classification struct {
	SourceID    string     `json:"ip"`
	BatchID     string     `json:"batch_id"`
	EncodedID   int        `json:"encoded_id"`
	WindowStart time.Time  `json:"window_start"`
	Records     int        `json:"records"`
	Annotated   int64      `json:"annotated"`
	Annotation  Annotation `json:"annotation"`
	At          time.Time  `json:"at"`
}

func (c *Classification) Burst() bool {
	return c.Annotation.Prediction == LabelBurst
}

func (c *Classification) Unseen() bool {
	return c.EncodedID == UnseenSource
}

func (c *Classification) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}
