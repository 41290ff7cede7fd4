package period

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	jan := New(2024, time.January)
	require.Equal(t, New(2023, time.December), jan.Prev())
	require.Equal(t, New(2024, time.February), jan.Next())
	require.Equal(t, New(2022, time.November), jan.AddMonths(-14))
	require.Equal(t, New(2025, time.January), New(2024, 13))

	require.True(t, jan.Prev().Before(jan))
	require.False(t, jan.Before(jan))
	require.Equal(t, 14, MonthsBetween(jan.AddMonths(-14), jan))
	require.Equal(t, "2024/01", jan.String())
}

func TestBackward(t *testing.T) {
	require.Equal(t, []Period{
		New(2024, time.February),
		New(2024, time.January),
		New(2023, time.December),
	}, Backward(New(2024, time.February), 3))
}

func TestParse(t *testing.T) {
	p, err := Parse("2021-09")
	require.NoError(t, err)
	require.Equal(t, New(2021, time.September), p)

	p, err = Parse("2020/1")
	require.NoError(t, err)
	require.Equal(t, New(2020, time.January), p)

	_, err = Parse("September 2021")
	require.Error(t, err)
}

func TestJSONShape(t *testing.T) {
	encoded, err := json.Marshal(New(2024, time.March))
	require.NoError(t, err)
	require.JSONEq(t, `{"year":2024,"month":3}`, string(encoded))
}
