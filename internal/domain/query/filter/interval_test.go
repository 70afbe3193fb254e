package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

func rangeOf(lo, hi int64, loInc, hiInc bool) Interval {
	return Interval{
		Low:   Bound{Value: document.Int(lo), Inclusive: loInc},
		High:  Bound{Value: document.Int(hi), Inclusive: hiInc},
		Typed: true,
	}
}

func TestInterval_Contains(t *testing.T) {
	iv := rangeOf(1, 5, true, false)
	assert.True(t, iv.Contains(document.Int(1)))
	assert.True(t, iv.Contains(document.Float(4.9)))
	assert.False(t, iv.Contains(document.Int(5)))
	assert.False(t, iv.Contains(document.String("3")))
	assert.True(t, Full().Contains(document.String("3")))
}

func TestInterval_Intersect(t *testing.T) {
	got, ok := rangeOf(1, 10, true, true).Intersect(rangeOf(5, 20, false, true))
	require.True(t, ok)
	assert.Equal(t, int64(5), got.Low.Value.IntValue())
	assert.False(t, got.Low.Inclusive)
	assert.Equal(t, int64(10), got.High.Value.IntValue())

	_, ok = rangeOf(1, 5, true, false).Intersect(rangeOf(5, 9, true, true))
	assert.False(t, ok)

	pt, ok := PointInterval(document.Int(3)).Intersect(rangeOf(1, 5, true, true))
	require.True(t, ok)
	assert.True(t, pt.IsPoint())
}

func TestInterval_Within(t *testing.T) {
	outer := rangeOf(0, 100, true, true)
	assert.True(t, rangeOf(10, 20, true, true).Within(outer))
	assert.True(t, PointInterval(document.Int(0)).Within(outer))
	assert.False(t, rangeOf(-1, 20, true, true).Within(outer))
	assert.False(t, Full().Within(outer))
	assert.True(t, outer.Within(Full()))

	open := rangeOf(0, 100, false, true)
	assert.False(t, PointInterval(document.Int(0)).Within(open))
}

func TestIntersectSets(t *testing.T) {
	points := pointSet([]document.Value{document.Int(1), document.Int(7), document.Int(3)})
	got := IntersectSets(points, []Interval{rangeOf(2, 10, true, true)})
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Low.Value.IntValue())
	assert.Equal(t, int64(7), got[1].Low.Value.IntValue())
}
