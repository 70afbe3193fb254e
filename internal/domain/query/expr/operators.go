package expr

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

type evalFunc func(s *Scope, args []Expression) (document.Value, error)

type opDef struct {
	minArgs int
	maxArgs int // -1 for variadic
	fn      evalFunc
}

// Operator applies a named operator to its argument expressions.
type Operator struct {
	Name string
	Args []Expression
	fn   evalFunc
}

// Eval applies the operator.
func (o Operator) Eval(s *Scope) (document.Value, error) {
	return o.fn(s, o.Args)
}

func (o Operator) evalOptional(s *Scope) (document.Value, bool, error) {
	v, err := o.fn(s, o.Args)
	if err != nil {
		return document.Value{}, false, err
	}
	if o.Name == "$arrayElemAt" && v.Kind() == document.KindNull {
		// out-of-range access yields no value
		return v, false, nil
	}
	return v, true, nil
}

var operators map[string]opDef

func init() {
	operators = map[string]opDef{
		"$add":          {1, -1, evalAdd},
		"$subtract":     {2, 2, evalSubtract},
		"$multiply":     {1, -1, evalMultiply},
		"$divide":       {2, 2, evalDivide},
		"$mod":          {2, 2, evalMod},
		"$abs":          {1, 1, unaryNumber("$abs", math.Abs)},
		"$ceil":         {1, 1, unaryNumber("$ceil", math.Ceil)},
		"$floor":        {1, 1, unaryNumber("$floor", math.Floor)},
		"$round":        {1, 2, evalRound},
		"$eq":           {2, 2, comparison(func(c int) bool { return c == 0 })},
		"$ne":           {2, 2, comparison(func(c int) bool { return c != 0 })},
		"$gt":           {2, 2, comparison(func(c int) bool { return c > 0 })},
		"$gte":          {2, 2, comparison(func(c int) bool { return c >= 0 })},
		"$lt":           {2, 2, comparison(func(c int) bool { return c < 0 })},
		"$lte":          {2, 2, comparison(func(c int) bool { return c <= 0 })},
		"$cmp":          {2, 2, evalCmp},
		"$and":          {0, -1, evalAnd},
		"$or":           {0, -1, evalOr},
		"$not":          {1, 1, evalNot},
		"$cond":         {3, 3, evalCond},
		"$ifNull":       {2, -1, evalIfNull},
		"$concat":       {0, -1, evalConcat},
		"$substr":       {3, 3, evalSubstr},
		"$substrBytes":  {3, 3, evalSubstr},
		"$indexOfBytes": {2, 4, evalIndexOfBytes},
		"$toLower":      {1, 1, unaryString("$toLower", strings.ToLower)},
		"$toUpper":      {1, 1, unaryString("$toUpper", strings.ToUpper)},
		"$strLenBytes":  {1, 1, evalStrLenBytes},
		"$strLenCP":     {1, 1, evalStrLenCP},
		"$split":        {2, 2, evalSplit},
		"$size":         {1, 1, evalSize},
		"$arrayElemAt":  {2, 2, evalArrayElemAt},
		"$in":           {2, 2, evalIn},
		"$type":         {1, 1, evalType},
		"$toString":     {1, 1, evalToString},
		"$toInt":        {1, 1, evalToInt},
		"$toDouble":     {1, 1, evalToDouble},
		"$year":         {1, 1, datePart("$year", func(t time.Time) int { return t.Year() })},
		"$month":        {1, 1, datePart("$month", func(t time.Time) int { return int(t.Month()) })},
		"$dayOfMonth":   {1, 1, datePart("$dayOfMonth", func(t time.Time) int { return t.Day() })},
		"$dayOfWeek":    {1, 1, datePart("$dayOfWeek", func(t time.Time) int { return int(t.Weekday()) + 1 })},
		"$hour":         {1, 1, datePart("$hour", func(t time.Time) int { return t.Hour() })},
		"$minute":       {1, 1, datePart("$minute", func(t time.Time) int { return t.Minute() })},
		"$second":       {1, 1, datePart("$second", func(t time.Time) int { return t.Second() })},
	}
}

func compileOperator(name string, arg document.Value) (Expression, error) {
	switch name {
	case "$literal":
		return Const{Value: arg}, nil
	case "$meta":
		if arg.Kind() != document.KindString || arg.StringValue() != "textScore" {
			return nil, fmt.Errorf("$meta supports only \"textScore\": %w", domain.ErrInvalidSpec)
		}
		return textScore{}, nil
	case "$cond":
		if arg.Kind() == document.KindDocument {
			return compileCondObject(arg.DocumentValue())
		}
	}

	def, ok := operators[name]
	if !ok {
		return nil, fmt.Errorf("unknown expression operator %s: %w", name, domain.ErrInvalidSpec)
	}

	var raw []document.Value
	if arg.Kind() == document.KindArray {
		raw = arg.ArrayValue()
	} else {
		raw = []document.Value{arg}
	}
	if len(raw) < def.minArgs || (def.maxArgs >= 0 && len(raw) > def.maxArgs) {
		return nil, fmt.Errorf("%s: wrong number of arguments (%d): %w", name, len(raw), domain.ErrInvalidSpec)
	}
	args := make([]Expression, len(raw))
	for i, r := range raw {
		c, err := Compile(r)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", name, i, err)
		}
		args[i] = c
	}
	return Operator{Name: name, Args: args, fn: def.fn}, nil
}

func compileCondObject(d *document.Document) (Expression, error) {
	parts := make([]Expression, 3)
	for i, key := range []string{"if", "then", "else"} {
		v, ok := d.Get(key)
		if !ok {
			return nil, fmt.Errorf("$cond requires %q: %w", key, domain.ErrInvalidSpec)
		}
		c, err := Compile(v)
		if err != nil {
			return nil, fmt.Errorf("$cond.%s: %w", key, err)
		}
		parts[i] = c
	}
	if d.Len() != 3 {
		return nil, fmt.Errorf("$cond accepts only if, then and else: %w", domain.ErrInvalidSpec)
	}
	return Operator{Name: "$cond", Args: parts, fn: evalCond}, nil
}

type textScore struct{}

func (textScore) Eval(s *Scope) (document.Value, error) {
	v, _, err := textScore{}.evalOptional(s)
	return v, err
}

func (textScore) evalOptional(s *Scope) (document.Value, bool, error) {
	score, ok := s.Current.TextScore()
	if !ok {
		return document.Null(), false, nil
	}
	return document.Float(score), true, nil
}

func evalAll(s *Scope, args []Expression) ([]document.Value, error) {
	out := make([]document.Value, len(args))
	for i, a := range args {
		v, err := a.Eval(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func anyNull(vals []document.Value) bool {
	for _, v := range vals {
		if v.IsNull() {
			return true
		}
	}
	return false
}

func mismatch(op, expected string, v document.Value) error {
	return domain.NewTypeMismatch(op, expected, v.Kind().String())
}

// --- arithmetic ---

func evalAdd(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	var date *time.Time
	acc := document.Int(0)
	for _, v := range vals {
		switch {
		case v.Kind() == document.KindDate:
			if date != nil {
				return document.Value{}, fmt.Errorf("$add: only one date allowed: %w", domain.ErrTypeMismatch)
			}
			t := v.TimeValue()
			date = &t
		case v.IsNumber():
			acc = AddNumbers(acc, v)
		default:
			return document.Value{}, mismatch("$add", "number or date", v)
		}
	}
	if date != nil {
		return document.Date(date.Add(time.Duration(acc.FloatValue() * float64(time.Millisecond)))), nil
	}
	return acc, nil
}

// AddNumbers adds two numbers, keeping ints unless the sum overflows.
func AddNumbers(a, b document.Value) document.Value {
	if a.Kind() == document.KindInt && b.Kind() == document.KindInt {
		x, y := a.IntValue(), b.IntValue()
		sum := x + y
		if (x > 0 && y > 0 && sum < 0) || (x < 0 && y < 0 && sum >= 0) {
			return document.Float(float64(x) + float64(y))
		}
		return document.Int(sum)
	}
	return document.Float(a.FloatValue() + b.FloatValue())
}

// MultiplyNumbers multiplies two numbers, keeping ints unless the product overflows.
func MultiplyNumbers(a, b document.Value) document.Value {
	if a.Kind() == document.KindInt && b.Kind() == document.KindInt {
		x, y := a.IntValue(), b.IntValue()
		if x == 0 || y == 0 {
			return document.Int(0)
		}
		p := x * y
		if p/y == x && !(x == -1 && y == math.MinInt64) && !(y == -1 && x == math.MinInt64) {
			return document.Int(p)
		}
		return document.Float(float64(x) * float64(y))
	}
	return document.Float(a.FloatValue() * b.FloatValue())
}

func evalSubtract(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	a, b := vals[0], vals[1]
	switch {
	case a.Kind() == document.KindDate && b.Kind() == document.KindDate:
		return document.Int(a.TimeValue().Sub(b.TimeValue()).Milliseconds()), nil
	case a.Kind() == document.KindDate && b.IsNumber():
		return document.Date(a.TimeValue().Add(-time.Duration(b.FloatValue() * float64(time.Millisecond)))), nil
	case a.IsNumber() && b.IsNumber():
		if a.Kind() == document.KindInt && b.Kind() == document.KindInt {
			return AddNumbers(a, document.Int(-b.IntValue())), nil
		}
		return document.Float(a.FloatValue() - b.FloatValue()), nil
	}
	if !a.IsNumber() {
		return document.Value{}, mismatch("$subtract", "number or date", a)
	}
	return document.Value{}, mismatch("$subtract", "number", b)
}

func evalMultiply(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	acc := document.Int(1)
	for _, v := range vals {
		if !v.IsNumber() {
			return document.Value{}, mismatch("$multiply", "number", v)
		}
		acc = MultiplyNumbers(acc, v)
	}
	return acc, nil
}

func evalDivide(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	for _, v := range vals {
		if !v.IsNumber() {
			return document.Value{}, mismatch("$divide", "number", v)
		}
	}
	if vals[1].FloatValue() == 0 {
		return document.Value{}, fmt.Errorf("$divide by zero: %w", domain.ErrInvalidSpec)
	}
	return document.Float(vals[0].FloatValue() / vals[1].FloatValue()), nil
}

func evalMod(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	for _, v := range vals {
		if !v.IsNumber() {
			return document.Value{}, mismatch("$mod", "number", v)
		}
	}
	if vals[1].FloatValue() == 0 {
		return document.Value{}, fmt.Errorf("$mod by zero: %w", domain.ErrInvalidSpec)
	}
	if vals[0].Kind() == document.KindInt && vals[1].Kind() == document.KindInt {
		return document.Int(vals[0].IntValue() % vals[1].IntValue()), nil
	}
	return document.Float(math.Mod(vals[0].FloatValue(), vals[1].FloatValue())), nil
}

func unaryNumber(name string, f func(float64) float64) evalFunc {
	return func(s *Scope, args []Expression) (document.Value, error) {
		v, err := args[0].Eval(s)
		if err != nil || v.IsNull() {
			return document.Null(), err
		}
		if !v.IsNumber() {
			return document.Value{}, mismatch(name, "number", v)
		}
		if v.Kind() == document.KindInt {
			if name == "$abs" && v.IntValue() < 0 && v.IntValue() != math.MinInt64 {
				return document.Int(-v.IntValue()), nil
			}
			if name != "$abs" {
				return v, nil
			}
		}
		return document.Float(f(v.FloatValue())), nil
	}
}

func evalRound(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	if !vals[0].IsNumber() {
		return document.Value{}, mismatch("$round", "number", vals[0])
	}
	places := int64(0)
	if len(vals) == 2 {
		if !vals[1].IsNumber() {
			return document.Value{}, mismatch("$round", "integer place", vals[1])
		}
		places = vals[1].IntValue()
	}
	if vals[0].Kind() == document.KindInt && places >= 0 {
		return vals[0], nil
	}
	pow := math.Pow(10, float64(places))
	return document.Float(math.RoundToEven(vals[0].FloatValue()*pow) / pow), nil
}

// --- comparison and boolean ---

func comparison(pred func(int) bool) evalFunc {
	return func(s *Scope, args []Expression) (document.Value, error) {
		vals, err := evalAll(s, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.Bool(pred(document.Compare(vals[0], vals[1]))), nil
	}
}

func evalCmp(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil {
		return document.Value{}, err
	}
	return document.Int(int64(document.Compare(vals[0], vals[1]))), nil
}

func evalAnd(s *Scope, args []Expression) (document.Value, error) {
	for _, a := range args {
		v, err := a.Eval(s)
		if err != nil {
			return document.Value{}, err
		}
		if !v.Truthy() {
			return document.Bool(false), nil
		}
	}
	return document.Bool(true), nil
}

func evalOr(s *Scope, args []Expression) (document.Value, error) {
	for _, a := range args {
		v, err := a.Eval(s)
		if err != nil {
			return document.Value{}, err
		}
		if v.Truthy() {
			return document.Bool(true), nil
		}
	}
	return document.Bool(false), nil
}

func evalNot(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	return document.Bool(!v.Truthy()), nil
}

func evalCond(s *Scope, args []Expression) (document.Value, error) {
	c, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	if c.Truthy() {
		return args[1].Eval(s)
	}
	return args[2].Eval(s)
}

func evalIfNull(s *Scope, args []Expression) (document.Value, error) {
	for _, a := range args[:len(args)-1] {
		v, err := a.Eval(s)
		if err != nil {
			return document.Value{}, err
		}
		if !v.IsNull() {
			return v, nil
		}
	}
	return args[len(args)-1].Eval(s)
}

// --- strings ---

func evalConcat(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	var b strings.Builder
	for _, v := range vals {
		if v.Kind() != document.KindString {
			return document.Value{}, mismatch("$concat", "string", v)
		}
		b.WriteString(v.StringValue())
	}
	return document.String(b.String()), nil
}

func evalSubstr(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil {
		return document.Value{}, err
	}
	if vals[0].IsNull() {
		return document.String(""), nil
	}
	if vals[0].Kind() != document.KindString {
		return document.Value{}, mismatch("$substr", "string", vals[0])
	}
	if !vals[1].IsNumber() || !vals[2].IsNumber() {
		return document.Value{}, fmt.Errorf("$substr start and length must be numbers: %w", domain.ErrTypeMismatch)
	}
	str := vals[0].StringValue()
	start := int(vals[1].IntValue())
	length := int(vals[2].IntValue())
	if start < 0 || start >= len(str) {
		return document.String(""), nil
	}
	end := len(str)
	if length >= 0 && start+length < end {
		end = start + length
	}
	return document.String(str[start:end]), nil
}

func evalIndexOfBytes(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil {
		return document.Value{}, err
	}
	if vals[0].IsNull() {
		return document.Null(), nil
	}
	if vals[0].Kind() != document.KindString {
		return document.Value{}, mismatch("$indexOfBytes", "string", vals[0])
	}
	if vals[1].Kind() != document.KindString {
		return document.Value{}, mismatch("$indexOfBytes", "string", vals[1])
	}
	str := vals[0].StringValue()
	start, end := 0, len(str)
	if len(vals) > 2 {
		start = int(vals[2].IntValue())
	}
	if len(vals) > 3 {
		end = min(int(vals[3].IntValue()), len(str))
	}
	if start < 0 || start > end {
		return document.Int(-1), nil
	}
	i := strings.Index(str[start:end], vals[1].StringValue())
	if i < 0 {
		return document.Int(-1), nil
	}
	return document.Int(int64(start + i)), nil
}

func unaryString(name string, f func(string) string) evalFunc {
	return func(s *Scope, args []Expression) (document.Value, error) {
		v, err := args[0].Eval(s)
		if err != nil {
			return document.Value{}, err
		}
		switch v.Kind() {
		case document.KindNull:
			return document.String(""), nil
		case document.KindString:
			return document.String(f(v.StringValue())), nil
		case document.KindInt, document.KindFloat:
			return document.String(f(numberString(v))), nil
		}
		return document.Value{}, mismatch(name, "string", v)
	}
}

func evalStrLenBytes(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	if v.Kind() != document.KindString {
		return document.Value{}, mismatch("$strLenBytes", "string", v)
	}
	return document.Int(int64(len(v.StringValue()))), nil
}

func evalStrLenCP(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	if v.Kind() != document.KindString {
		return document.Value{}, mismatch("$strLenCP", "string", v)
	}
	return document.Int(int64(utf8.RuneCountInString(v.StringValue()))), nil
}

func evalSplit(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || vals[0].IsNull() {
		return document.Null(), err
	}
	if vals[0].Kind() != document.KindString {
		return document.Value{}, mismatch("$split", "string", vals[0])
	}
	if vals[1].Kind() != document.KindString || vals[1].StringValue() == "" {
		return document.Value{}, mismatch("$split", "non-empty string delimiter", vals[1])
	}
	parts := strings.Split(vals[0].StringValue(), vals[1].StringValue())
	out := make([]document.Value, len(parts))
	for i, p := range parts {
		out[i] = document.String(p)
	}
	return document.Array(out...), nil
}

// --- arrays and types ---

func evalSize(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	if v.Kind() != document.KindArray {
		return document.Value{}, mismatch("$size", "array", v)
	}
	return document.Int(int64(len(v.ArrayValue()))), nil
}

func evalArrayElemAt(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil || anyNull(vals) {
		return document.Null(), err
	}
	if vals[0].Kind() != document.KindArray {
		return document.Value{}, mismatch("$arrayElemAt", "array", vals[0])
	}
	if !vals[1].IsNumber() {
		return document.Value{}, mismatch("$arrayElemAt", "integer index", vals[1])
	}
	arr := vals[0].ArrayValue()
	idx := int(vals[1].IntValue())
	if idx < 0 {
		idx += len(arr)
	}
	if idx < 0 || idx >= len(arr) {
		return document.Null(), nil
	}
	return arr[idx], nil
}

func evalIn(s *Scope, args []Expression) (document.Value, error) {
	vals, err := evalAll(s, args)
	if err != nil {
		return document.Value{}, err
	}
	if vals[1].Kind() != document.KindArray {
		return document.Value{}, mismatch("$in", "array", vals[1])
	}
	for _, e := range vals[1].ArrayValue() {
		if document.Equal(vals[0], e) {
			return document.Bool(true), nil
		}
	}
	return document.Bool(false), nil
}

func evalType(s *Scope, args []Expression) (document.Value, error) {
	v, ok, err := Evaluate(args[0], s)
	if err != nil {
		return document.Value{}, err
	}
	if !ok {
		return document.String("missing"), nil
	}
	return document.String(v.Kind().String()), nil
}

func numberString(v document.Value) string {
	b, _ := v.MarshalJSON()
	return string(b)
}

func evalToString(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	switch v.Kind() {
	case document.KindNull:
		return document.Null(), nil
	case document.KindString:
		return v, nil
	case document.KindInt, document.KindFloat:
		return document.String(numberString(v)), nil
	case document.KindBool:
		if v.BoolValue() {
			return document.String("true"), nil
		}
		return document.String("false"), nil
	case document.KindDate:
		return document.String(v.TimeValue().Format(time.RFC3339Nano)), nil
	}
	return document.Value{}, mismatch("$toString", "scalar", v)
}

func evalToInt(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	switch v.Kind() {
	case document.KindNull:
		return document.Null(), nil
	case document.KindInt, document.KindFloat:
		return document.Int(v.IntValue()), nil
	case document.KindBool:
		if v.BoolValue() {
			return document.Int(1), nil
		}
		return document.Int(0), nil
	case document.KindString:
		var i int64
		if _, err := fmt.Sscan(v.StringValue(), &i); err != nil {
			return document.Value{}, mismatch("$toInt", "numeric string", v)
		}
		return document.Int(i), nil
	}
	return document.Value{}, mismatch("$toInt", "number", v)
}

func evalToDouble(s *Scope, args []Expression) (document.Value, error) {
	v, err := args[0].Eval(s)
	if err != nil {
		return document.Value{}, err
	}
	switch v.Kind() {
	case document.KindNull:
		return document.Null(), nil
	case document.KindInt, document.KindFloat:
		return document.Float(v.FloatValue()), nil
	case document.KindString:
		var f float64
		if _, err := fmt.Sscan(v.StringValue(), &f); err != nil {
			return document.Value{}, mismatch("$toDouble", "numeric string", v)
		}
		return document.Float(f), nil
	}
	return document.Value{}, mismatch("$toDouble", "number", v)
}

func datePart(name string, part func(time.Time) int) evalFunc {
	return func(s *Scope, args []Expression) (document.Value, error) {
		v, err := args[0].Eval(s)
		if err != nil || v.IsNull() {
			return document.Null(), err
		}
		if v.Kind() != document.KindDate {
			return document.Value{}, mismatch(name, "date", v)
		}
		return document.Int(int64(part(v.TimeValue()))), nil
	}
}
