package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	assert.True(t, v.IsNull())
	assert.Equal(t, KindNull, v.Kind())
	assert.True(t, v.Equal(Null()))
}

func TestValue_Equal(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("a").Equal(String("b")))
	assert.False(t, Int(1).Equal(Float(1)), "different kinds never compare equal")
	assert.True(t, Time(ts).Equal(Time(ts.In(time.FixedZone("x", 3600)))))
	assert.False(t, Bool(true).Equal(Null()))
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(KindInt, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int())

	v, err = ParseValue(KindBool, "true")
	require.NoError(t, err)
	assert.True(t, v.Bool())

	v, err = ParseValue(KindString, "NULL")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = ParseValue(KindFloat, "abc")
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	v, err := FromJSON(KindInt, float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int())

	_, err = FromJSON(KindInt, 7.5)
	assert.Error(t, err)

	v, err = FromJSON(KindTime, "2024-01-15T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, v.Time().Year())

	_, err = FromJSON(KindBool, "yes")
	assert.Error(t, err)
}

func TestFromJSON_BoolRequiresJSONBool(t *testing.T) {
	v, err := FromJSON(KindBool, true)
	require.NoError(t, err)
	assert.True(t, v.Bool())

	for _, raw := range []any{float64(1), float64(0), json.Number("1"), "1", "t", "true"} {
		_, err := FromJSON(KindBool, raw)
		assert.Error(t, err, "%#v", raw)
	}

	// Text input keeps the strconv.ParseBool forms
	v, err = ParseValue(KindBool, "1")
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestFromJSON_NumbersOnlyForNumericFields(t *testing.T) {
	v, err := FromJSON(KindInt, json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.Int())

	v, err = FromJSON(KindFloat, json.Number("2.5"))
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.Float())

	_, err = FromJSON(KindString, json.Number("12"))
	assert.Error(t, err)

	_, err = FromJSON(KindInt, "12")
	assert.Error(t, err)
}

func TestValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Attributes{"n": Int(3), "s": String("x"), "z": Null()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3,"s":"x","z":null}`, string(data))
}

func TestAttributes_CloneIsIndependent(t *testing.T) {
	a := Attributes{"email": String("a@x.com")}
	b := a.Clone()
	a["email"] = String("b@x.com")

	assert.Equal(t, "a@x.com", b.Get("email").Str())
	assert.True(t, b.Get("missing").IsNull())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Timestamp")
	require.NoError(t, err)
	assert.Equal(t, KindTime, k)

	_, err = ParseKind("blob")
	assert.Error(t, err)
}
