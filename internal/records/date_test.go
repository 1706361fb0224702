package records

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRoundTrip(t *testing.T) {
	tests := []string{
		"2014",
		"2014-06",
		"2014-06-30",
		"2014-06-30T14:30:45Z",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			var d Date
			require.NoError(t, json.Unmarshal([]byte(`"`+raw+`"`), &d))

			out, err := json.Marshal(d)
			require.NoError(t, err)
			assert.JSONEq(t, `"`+raw+`"`, string(out))
		})
	}
}

func TestDateOffsetNormalised(t *testing.T) {
	d, err := ParseDate("2014-06-30T14:30:45+00:00")
	require.NoError(t, err)
	assert.True(t, d.HasTime)
	assert.Equal(t, "2014-06-30T14:30:45Z", d.String())
}

func TestDateRejectsNonUTC(t *testing.T) {
	_, err := ParseDate("2014-06-30T14:30:45+02:00")
	assert.ErrorContains(t, err, "must be UTC")
}

func TestDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"yesterday", "2014-6", "30/06/2014"} {
		_, err := ParseDate(raw)
		assert.Error(t, err, raw)
	}
}

func TestDatePrecision(t *testing.T) {
	year, err := ParseDate("1998")
	require.NoError(t, err)
	assert.Equal(t, PrecisionYear, year.Precision)

	month, err := ParseDate("1998-04")
	require.NoError(t, err)
	assert.Equal(t, PrecisionMonth, month.Precision)

	day, err := ParseDate("1998-04-12")
	require.NoError(t, err)
	assert.Equal(t, PrecisionDay, day.Precision)
	assert.False(t, day.HasTime)
}
