package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

func parse(t *testing.T, js string) document.Value {
	t.Helper()
	d, err := document.ParseJSON([]byte(`{"v":` + js + `}`))
	require.NoError(t, err)
	v, _ := d.Get("v")
	return v
}

func eval(t *testing.T, exprJSON, docJSON string) document.Value {
	t.Helper()
	e, err := Compile(parse(t, exprJSON))
	require.NoError(t, err)
	d, err := document.ParseJSON([]byte(docJSON))
	require.NoError(t, err)
	v, err := e.Eval(NewScope(d))
	require.NoError(t, err)
	return v
}

func TestFieldPathAndVariables(t *testing.T) {
	doc := `{"_id":1,"a":{"b":5},"items":[{"p":1},{"p":2}]}`

	assert.Equal(t, int64(5), eval(t, `"$a.b"`, doc).IntValue())
	assert.Equal(t, document.KindArray, eval(t, `"$items.p"`, doc).Kind())
	assert.True(t, eval(t, `"$missing"`, doc).IsNull())
	assert.Equal(t, int64(5), eval(t, `"$$ROOT.a.b"`, doc).IntValue())
	assert.Equal(t, VarPrune, eval(t, `"$$PRUNE"`, doc).StringValue())
}

func TestEvaluate_MissingIsAbsent(t *testing.T) {
	e, err := Compile(parse(t, `"$nope"`))
	require.NoError(t, err)
	_, ok, err := Evaluate(e, NewScope(document.New()))
	require.NoError(t, err)
	assert.False(t, ok)

	rm, err := Compile(parse(t, `"$$REMOVE"`))
	require.NoError(t, err)
	_, ok, err = Evaluate(rm, NewScope(document.New()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestObjectOmitsAbsent(t *testing.T) {
	v := eval(t, `{"x":"$a","y":"$missing","z":{"$literal":"$notapath"}}`, `{"a":1}`)
	d := v.DocumentValue()
	assert.Equal(t, []string{"x", "z"}, d.Keys())
	z, _ := d.Get("z")
	assert.Equal(t, "$notapath", z.StringValue())
}

func TestArithmetic(t *testing.T) {
	doc := `{"a":6,"b":4,"f":1.5,"s":"x"}`
	tests := []struct {
		expr string
		want document.Value
	}{
		{`{"$add":["$a","$b",1]}`, document.Int(11)},
		{`{"$add":["$a","$f"]}`, document.Float(7.5)},
		{`{"$subtract":["$a","$b"]}`, document.Int(2)},
		{`{"$multiply":["$a","$b"]}`, document.Int(24)},
		{`{"$divide":["$a","$b"]}`, document.Float(1.5)},
		{`{"$mod":["$a","$b"]}`, document.Int(2)},
		{`{"$abs":-3}`, document.Int(3)},
		{`{"$ceil":"$f"}`, document.Float(2)},
		{`{"$floor":"$f"}`, document.Float(1)},
		{`{"$round":[2.345,2]}`, document.Float(2.34)},
		{`{"$add":["$a","$missing"]}`, document.Null()},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := eval(t, tt.expr, doc)
			assert.Equal(t, tt.want.Kind(), got.Kind())
			assert.True(t, document.Equal(tt.want, got), "got %v", got)
		})
	}
}

func TestArithmetic_TypeMismatchIsFatal(t *testing.T) {
	e, err := Compile(parse(t, `{"$add":["$s",1]}`))
	require.NoError(t, err)
	d, _ := document.ParseJSON([]byte(`{"s":"x"}`))
	_, err = e.Eval(NewScope(d))
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)

	size, err := Compile(parse(t, `{"$size":"$s"}`))
	require.NoError(t, err)
	_, err = size.Eval(NewScope(d))
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)
}

func TestDivideByZero(t *testing.T) {
	e, err := Compile(parse(t, `{"$divide":[1,0]}`))
	require.NoError(t, err)
	_, err = e.Eval(NewScope(document.New()))
	assert.Error(t, err)
}

func TestAddDate(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d := document.New()
	d.Set("at", document.Date(base))
	e, err := Compile(parse(t, `{"$add":["$at",60000]}`))
	require.NoError(t, err)
	v, err := e.Eval(NewScope(d))
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), v.TimeValue())

	year, err := Compile(parse(t, `{"$year":"$at"}`))
	require.NoError(t, err)
	y, err := year.Eval(NewScope(d))
	require.NoError(t, err)
	assert.Equal(t, int64(2024), y.IntValue())
}

func TestComparisonAndBoolean(t *testing.T) {
	doc := `{"a":5}`
	assert.True(t, eval(t, `{"$gt":["$a",4]}`, doc).BoolValue())
	assert.False(t, eval(t, `{"$lte":["$a",4]}`, doc).BoolValue())
	assert.Equal(t, int64(-1), eval(t, `{"$cmp":[1,2]}`, doc).IntValue())
	assert.True(t, eval(t, `{"$and":[true,{"$eq":["$a",5]}]}`, doc).BoolValue())
	assert.True(t, eval(t, `{"$or":[false,1]}`, doc).BoolValue())
	assert.True(t, eval(t, `{"$not":[0]}`, doc).BoolValue())
}

func TestConditional(t *testing.T) {
	doc := `{"qty":250}`
	assert.Equal(t, "big", eval(t, `{"$cond":[{"$gte":["$qty",100]},"big","small"]}`, doc).StringValue())
	assert.Equal(t, "small", eval(t, `{"$cond":{"if":{"$lt":["$qty",100]},"then":"big","else":"small"}}`, doc).StringValue())
	assert.Equal(t, "n/a", eval(t, `{"$ifNull":["$missing","n/a"]}`, doc).StringValue())
	assert.Equal(t, int64(250), eval(t, `{"$ifNull":["$qty","n/a"]}`, doc).IntValue())
}

func TestStrings(t *testing.T) {
	doc := `{"name":"Alice Smith"}`
	assert.Equal(t, "ALICE SMITH", eval(t, `{"$toUpper":"$name"}`, doc).StringValue())
	assert.Equal(t, "Alice", eval(t, `{"$substr":["$name",0,5]}`, doc).StringValue())
	assert.Equal(t, "Alice!", eval(t, `{"$concat":[{"$substrBytes":["$name",0,5]},"!"]}`, doc).StringValue())
	assert.Equal(t, int64(6), eval(t, `{"$indexOfBytes":["$name","Smith"]}`, doc).IntValue())
	assert.Equal(t, int64(-1), eval(t, `{"$indexOfBytes":["$name","Bob"]}`, doc).IntValue())
	assert.Equal(t, int64(11), eval(t, `{"$strLenBytes":"$name"}`, doc).IntValue())
	parts := eval(t, `{"$split":["$name"," "]}`, doc).ArrayValue()
	require.Len(t, parts, 2)
	assert.Equal(t, "Smith", parts[1].StringValue())
}

func TestArraysAndTypes(t *testing.T) {
	doc := `{"tags":["a","b","c"],"n":1.5}`
	assert.Equal(t, int64(3), eval(t, `{"$size":"$tags"}`, doc).IntValue())
	assert.Equal(t, "c", eval(t, `{"$arrayElemAt":["$tags",-1]}`, doc).StringValue())
	assert.True(t, eval(t, `{"$in":["b","$tags"]}`, doc).BoolValue())
	assert.Equal(t, "array", eval(t, `{"$type":"$tags"}`, doc).StringValue())
	assert.Equal(t, "double", eval(t, `{"$type":"$n"}`, doc).StringValue())
	assert.Equal(t, "missing", eval(t, `{"$type":"$nope"}`, doc).StringValue())
	assert.Equal(t, "1.5", eval(t, `{"$toString":"$n"}`, doc).StringValue())
}

func TestTextScoreMeta(t *testing.T) {
	e, err := Compile(parse(t, `{"$meta":"textScore"}`))
	require.NoError(t, err)
	d := document.New().WithTextScore(1.25)
	v, err := e.Eval(NewScope(d))
	require.NoError(t, err)
	assert.InDelta(t, 1.25, v.FloatValue(), 1e-9)

	_, err = Compile(parse(t, `{"$meta":"searchScore"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestCompileErrors(t *testing.T) {
	for _, js := range []string{
		`{"$nosuchop":1}`,
		`{"$add":1,"x":2}`,
		`{"$subtract":[1]}`,
		`{"$cond":{"if":true,"then":1}}`,
		`"$$"`,
	} {
		_, err := Compile(parse(t, js))
		assert.ErrorIs(t, err, domain.ErrInvalidSpec, js)
	}
}

func TestAccumulators(t *testing.T) {
	inputs := []document.Value{
		document.Int(3), document.String("x"), document.Int(1), document.Null(), document.Int(3),
	}
	run := func(op string) document.Value {
		spec, err := CompileAccumulatorOp(op, document.String("$v"))
		require.NoError(t, err)
		acc := spec.New()
		for _, in := range inputs {
			acc.Add(in, true)
		}
		return acc.Result()
	}

	sum := run("$sum")
	assert.Equal(t, document.KindInt, sum.Kind())
	assert.Equal(t, int64(7), sum.IntValue())
	assert.InDelta(t, 7.0/3, run("$avg").FloatValue(), 1e-9)
	assert.Equal(t, int64(1), run("$min").IntValue())
	assert.Equal(t, "x", run("$max").StringValue())
	assert.Len(t, run("$push").ArrayValue(), 5)
	assert.Len(t, run("$addToSet").ArrayValue(), 4)
	assert.Equal(t, int64(3), run("$first").IntValue())
	assert.Equal(t, int64(3), run("$last").IntValue())
}

func TestAccumulator_SumWidensOnFloat(t *testing.T) {
	spec, err := CompileAccumulatorOp("$sum", document.String("$v"))
	require.NoError(t, err)
	acc := spec.New()
	acc.Add(document.Int(1), true)
	acc.Add(document.Float(0.5), true)
	assert.Equal(t, document.KindFloat, acc.Result().Kind())
}

func TestAccumulator_EmptyResults(t *testing.T) {
	for op, want := range map[string]document.Kind{
		"$avg": document.KindNull,
		"$min": document.KindNull,
		"$sum": document.KindInt,
	} {
		spec, err := CompileAccumulatorOp(op, document.String("$v"))
		require.NoError(t, err)
		assert.Equal(t, want, spec.New().Result().Kind(), op)
	}
}

func TestAccumulator_Count(t *testing.T) {
	spec, err := CompileAccumulator(parse(t, `{"$count":{}}`))
	require.NoError(t, err)
	acc := spec.New()
	for range 4 {
		require.NoError(t, spec.Feed(acc, NewScope(document.New())))
	}
	assert.Equal(t, int64(4), acc.Result().IntValue())

	_, err = CompileAccumulator(parse(t, `{"$median":"$x"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}
