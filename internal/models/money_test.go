package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentavos_String(t *testing.T) {
	assert.Equal(t, "P5.00", Centavos(500).String())
	assert.Equal(t, "P0.05", Centavos(5).String())
	assert.Equal(t, "P1234.50", Centavos(123450).String())
	assert.Equal(t, "-P5.00", Centavos(-500).String())
}

func TestCentavos_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Balance Centavos `json:"balance"`
	}{Balance: 1500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":15.00}`, string(b))

	var v struct {
		Amount Centavos `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":5.1}`), &v))
	assert.Equal(t, Centavos(510), v.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"P15.00"}`), &v))
	assert.Equal(t, Centavos(1500), v.Amount)

	require.Error(t, json.Unmarshal([]byte(`{"amount":"lots"}`), &v))
}

func TestParseCentavos(t *testing.T) {
	v, err := ParseCentavos(" 15 ")
	require.NoError(t, err)
	assert.Equal(t, Centavos(1500), v)

	v, err = ParseCentavos("0.29")
	require.NoError(t, err)
	assert.Equal(t, Centavos(29), v)

	_, err = ParseCentavos("")
	require.Error(t, err)
}

func TestParseCentavos_RejectsNonFiniteAndOverflow(t *testing.T) {
	for _, s := range []string{"NaN", "Inf", "-Inf", "1e300", "-1e300", "92233720368547758.08"} {
		_, err := ParseCentavos(s)
		assert.Error(t, err, s)
	}

	v, err := ParseCentavos("1000000000")
	require.NoError(t, err)
	assert.Equal(t, Centavos(100000000000), v)

	var body struct {
		Amount Centavos `json:"amount"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"amount":1e300}`), &body))
	require.Error(t, json.Unmarshal([]byte(`{"amount":"NaN"}`), &body))
	require.Error(t, json.Unmarshal([]byte(`{"amount":"P1e300"}`), &body))
}
