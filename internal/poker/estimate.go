package poker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Estimate is a cast vote: a number for numeric presets or a string for
// yes/no style presets. A nil *Estimate is an uncast vote.
type Estimate struct {
	num    float64
	text   string
	isText bool
}

func Number(f float64) *Estimate { return &Estimate{num: f} }

func Text(s string) *Estimate { return &Estimate{text: s, isText: true} }

func (e *Estimate) IsText() bool { return e.isText }

func (e *Estimate) String() string {
	if e == nil {
		return "-"
	}
	if e.isText {
		return e.text
	}
	return strconv.FormatFloat(e.num, 'f', -1, 64)
}

func (e *Estimate) clone() *Estimate {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func (e Estimate) MarshalJSON() ([]byte, error) {
	if e.isText {
		return json.Marshal(e.text)
	}
	return json.Marshal(e.num)
}

func (e *Estimate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty estimate")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = Estimate{text: s, isText: true}
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("estimate must be a number or string: %w", err)
		}
		*e = Estimate{num: f}
		return nil
	}
}
