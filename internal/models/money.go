package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Centavos is an amount of Philippine pesos in hundredths.
type Centavos int64

// String renders the amount the way the portal displays it, e.g. "P5.00".
func (c Centavos) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%sP%d.%02d", sign, v/100, v%100)
}

// Pesos returns the amount as a decimal number.
func (c Centavos) Pesos() float64 {
	return float64(c) / 100
}

func (c Centavos) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(c.Pesos(), 'f', 2, 64)), nil
}

func (c *Centavos) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if err2 := json.Unmarshal(b, &s); err2 != nil {
			return err
		}
		v, err := ParseCentavos(s)
		if err != nil {
			return err
		}
		*c = v
		return nil
	}
	v, err := fromPesos(f)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCentavos parses "15", "15.5", "15.00" or "P15.00".
func ParseCentavos(s string) (Centavos, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "P"))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return fromPesos(f)
}

// fromPesos rejects NaN, infinities and amounts that overflow int64 centavos.
func fromPesos(f float64) (Centavos, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %v", f)
	}
	r := math.Round(f * 100)
	if math.Abs(r) >= math.MaxInt64 {
		return 0, fmt.Errorf("amount %v out of range", f)
	}
	return Centavos(r), nil
}
