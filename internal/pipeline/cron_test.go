package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronField(t *testing.T) {
	tests := []struct {
		field string
		want  []int
		any   bool
	}{
		{field: "*", any: true},
		{field: "5", want: []int{5}},
		{field: "1-3", want: []int{1, 2, 3}},
		{field: "*/15", want: []int{0, 15, 30, 45}},
		{field: "10-20/5", want: []int{10, 15, 20}},
		{field: "1,7,9", want: []int{1, 7, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, err := parseCronField(tt.field, 0, 59)
			require.NoError(t, err)
			assert.Equal(t, tt.any, f.any)
			assert.Equal(t, tt.want, f.values)
		})
	}
}

func TestParseCronRejectsInvalid(t *testing.T) {
	for _, expr := range []string{
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestCronNext(t *testing.T) {
	sched, err := parseCron("30 2 * * *")
	require.NoError(t, err)

	from := time.Date(2026, 3, 2, 1, 59, 30, 0, time.UTC)
	next, err := sched.next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC), next)

	next, err = sched.next(next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 2, 30, 0, 0, time.UTC), next)
}

func TestCronNextDayOfWeek(t *testing.T) {
	sched, err := parseCron("0 0 * * 0")
	require.NoError(t, err)

	// 2026-03-02 is a Monday.
	next, err := sched.next(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}
