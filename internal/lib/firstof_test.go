package lib

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstOfPrecedence(t *testing.T) {
	src := Fields{"machine_th": 50.0, "hashrate": 70.0}

	v, ok := FirstOf(src, NumberFields("machineTH", "machine_th", "hashrate")...)
	require.True(t, ok)
	require.Equal(t, 50.0, v)
}

func TestFirstOfSkipsEmptyValues(t *testing.T) {
	src := Fields{"machineTH": 0.0, "machine_th": "", "hashrate": "110.5"}

	v, ok := FirstOf(src, NumberFields("machineTH", "machine_th", "hashrate")...)
	require.True(t, ok)
	require.Equal(t, 110.5, v)
}

func TestFirstOfNoMatch(t *testing.T) {
	v, ok := FirstOf(Fields{}, NumberFields("machineTH")...)
	require.False(t, ok)
	require.Zero(t, v)
}

func TestFirstOfOrFallback(t *testing.T) {
	src := Fields{"name": "   "}
	chain := append(StringFields("customerName", "name"), Constant[Fields]("Unknown Account"))

	require.Equal(t, "Unknown Account", FirstOfOr(src, "", chain...))
}

func TestStringFieldNumericID(t *testing.T) {
	v, ok := StringField("id")(Fields{"id": 1234567.0})
	require.True(t, ok)
	require.Equal(t, "1234567", v)
}

func TestNumberFieldRejectsGarbage(t *testing.T) {
	_, ok := NumberField("hashrate")(Fields{"hashrate": "fast"})
	require.False(t, ok)
}

func TestJSONNumberFields(t *testing.T) {
	src := Fields{"id": json.Number("90071992547409931"), "machineTH": json.Number("100")}

	id, ok := StringField("id")(src)
	require.True(t, ok)
	require.Equal(t, "90071992547409931", id)

	th, ok := NumberField("machineTH")(src)
	require.True(t, ok)
	require.Equal(t, 100.0, th)
}

func TestValueSkipsZero(t *testing.T) {
	chain := []Accessor[Fields, string]{Value[Fields](""), Value[Fields]("c-1"), Constant[Fields]("Unknown Account")}

	require.Equal(t, "c-1", FirstOfOr(Fields{}, "", chain...))
}
