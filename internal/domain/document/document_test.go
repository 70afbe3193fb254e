package document

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/geo"
)

func mustDoc(t *testing.T, m map[string]any) *Document {
	t.Helper()
	d, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	return d
}

func TestFromMap_IDFirstThenSorted(t *testing.T) {
	d := mustDoc(t, map[string]any{"name": "Kim", "age": 28, "_id": 1})
	got := strings.Join(d.Keys(), ",")
	if got != "_id,age,name" {
		t.Errorf("Keys() = %q, want _id,age,name", got)
	}
}

func TestFromAny_Kinds(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"nil", nil, KindNull},
		{"bool", true, KindBool},
		{"int", 3, KindInt},
		{"uint8", uint8(3), KindInt},
		{"float32", float32(1.5), KindFloat},
		{"string", "x", KindString},
		{"time", now, KindDate},
		{"slice", []string{"a", "b"}, KindArray},
		{"map", map[string]int{"a": 1}, KindDocument},
		{"point", geo.Point{Lng: 1, Lat: 2}, KindGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.in)
			if err != nil {
				t.Fatalf("FromAny: %v", err)
			}
			if v.Kind() != tt.want {
				t.Errorf("Kind() = %s, want %s", v.Kind(), tt.want)
			}
		})
	}
}

func TestFromAny_DateIsUTC(t *testing.T) {
	v, _ := FromAny(time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)))
	if v.TimeValue().Location() != time.UTC {
		t.Errorf("date not normalized to UTC: %v", v.TimeValue().Location())
	}
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(make(chan int))
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	_, err = FromAny(uint64(1 << 63))
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Fatalf("expected overflow error, got %v", err)
	}
}

func TestSetGetDelete_KeepsOrder(t *testing.T) {
	d := New()
	d.Set("b", Int(1))
	d.Set("a", Int(2))
	d.Set("b", Int(3))
	if got := strings.Join(d.Keys(), ","); got != "b,a" {
		t.Errorf("Keys() = %q, want b,a", got)
	}
	v, ok := d.Get("b")
	if !ok || v.IntValue() != 3 {
		t.Errorf("Get(b) = %v %v", v, ok)
	}
	if !d.Delete("b") || d.Delete("b") {
		t.Error("Delete must report existence exactly once")
	}
	d.Prepend("_id", String("x"))
	if d.Keys()[0] != "_id" {
		t.Errorf("Prepend did not place _id first: %v", d.Keys())
	}
}

func TestClone_IsDeep(t *testing.T) {
	d := mustDoc(t, map[string]any{"a": map[string]any{"b": 1}, "arr": []any{1, 2}})
	c := d.Clone()
	if err := c.SetPath("a.b", Int(9)); err != nil {
		t.Fatal(err)
	}
	v, _ := d.GetPath("a.b")
	if v.IntValue() != 1 {
		t.Errorf("original mutated through clone: %v", v)
	}
}

func TestResolve_ArrayFanOut(t *testing.T) {
	d := mustDoc(t, map[string]any{
		"orders": []any{
			map[string]any{"product": "Laptop"},
			map[string]any{"product": "Phone"},
			map[string]any{"other": 1},
		},
	})
	got := d.Resolve("orders.product")
	if len(got) != 2 || got[0].StringValue() != "Laptop" || got[1].StringValue() != "Phone" {
		t.Errorf("Resolve = %v", got)
	}
	if d.Resolve("missing.path") != nil {
		t.Error("missing path must resolve to nil")
	}
	byIndex := d.Resolve("orders.1.product")
	if len(byIndex) != 1 || byIndex[0].StringValue() != "Phone" {
		t.Errorf("Resolve by index = %v", byIndex)
	}
}

func TestLookup_ExpressionSemantics(t *testing.T) {
	d := mustDoc(t, map[string]any{
		"items": []any{map[string]any{"price": 2}, map[string]any{"price": 3}},
	})
	v, ok := d.Lookup("items.price")
	if !ok || v.Kind() != KindArray || len(v.ArrayValue()) != 2 {
		t.Fatalf("Lookup = %v %v", v, ok)
	}
	if _, ok := d.Lookup("nope"); ok {
		t.Error("missing field must not be found")
	}
}

func TestSetPath_CreatesIntermediate(t *testing.T) {
	d := New()
	if err := d.SetPath("address.city", String("Paphos")); err != nil {
		t.Fatal(err)
	}
	v, ok := d.GetPath("address.city")
	if !ok || v.StringValue() != "Paphos" {
		t.Errorf("GetPath = %v %v", v, ok)
	}
}

func TestSetPath_ArrayIndexPads(t *testing.T) {
	d := mustDoc(t, map[string]any{"tags": []any{"a"}})
	if err := d.SetPath("tags.2", String("c")); err != nil {
		t.Fatal(err)
	}
	v, _ := d.Get("tags")
	arr := v.ArrayValue()
	if len(arr) != 3 || !arr[1].IsNull() || arr[2].StringValue() != "c" {
		t.Errorf("tags = %v", v)
	}
}

func TestSetPath_ThroughScalarFails(t *testing.T) {
	d := mustDoc(t, map[string]any{"a": 1})
	err := d.SetPath("a.b", Int(2))
	if !errors.Is(err, domain.ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestUnsetPath(t *testing.T) {
	d := mustDoc(t, map[string]any{"a": map[string]any{"b": 1, "c": 2}, "x": 1})
	if !d.UnsetPath("a.b") {
		t.Error("expected a.b to be removed")
	}
	if d.UnsetPath("a.b") {
		t.Error("second unset must report false")
	}
	if !d.UnsetPath("x") || d.Has("x") {
		t.Error("top-level unset failed")
	}
}

func TestCompare_CrossTypeOrder(t *testing.T) {
	ordered := []Value{
		Null(),
		Int(-5),
		Float(2.5),
		Int(3),
		String("a"),
		Doc(FromFields(Field{"a", Int(1)})),
		Array(Int(1)),
		Bool(false),
		Bool(true),
		Date(time.Unix(0, 0)),
	}
	for i := 0; i+1 < len(ordered); i++ {
		if Compare(ordered[i], ordered[i+1]) >= 0 {
			t.Errorf("expected %v < %v", ordered[i], ordered[i+1])
		}
	}
}

func TestCompare_IntFloatEquality(t *testing.T) {
	if !Equal(Int(1), Float(1.0)) {
		t.Error("1 and 1.0 must be equal")
	}
	if KeyString(Int(1)) != KeyString(Float(1.0)) {
		t.Error("1 and 1.0 must share a key string")
	}
	if KeyString(String("1")) == KeyString(Int(1)) {
		t.Error("string and number keys must differ")
	}
}

func TestKeyString_Unambiguous(t *testing.T) {
	a := Array(String("ab"), String("c"))
	b := Array(String("a"), String("bc"))
	if KeyString(a) == KeyString(b) {
		t.Error("different arrays produced the same key")
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	in := `{"_id":1,"name":"Kim","score":2.5,"tags":["a","b"],"address":{"city":"Paphos"},"nothing":null}`
	d, err := ParseJSON([]byte(in))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if got := strings.Join(d.Keys(), ","); got != "_id,name,score,tags,address,nothing" {
		t.Errorf("key order lost: %s", got)
	}
	id, _ := d.ID()
	if id.Kind() != KindInt {
		t.Errorf("integral number should decode as int, got %s", id.Kind())
	}
	out, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != in {
		t.Errorf("MarshalJSON = %s", out)
	}
}

func TestGeometry_Forms(t *testing.T) {
	geojson := mustDoc(t, map[string]any{"type": "Point", "coordinates": []any{-73.97, 40.77}})
	p, ok := AsPoint(Doc(geojson))
	if !ok || p.Lng != -73.97 || p.Lat != 40.77 {
		t.Errorf("AsPoint(GeoJSON) = %+v %v", p, ok)
	}
	if _, ok := AsPoint(Array(Float(10), Float(20))); !ok {
		t.Error("legacy pair must parse")
	}
	if _, ok := AsPoint(Array(Float(200), Float(20))); ok {
		t.Error("out-of-range pair must not parse")
	}
	poly := mustDoc(t, map[string]any{
		"type":        "Polygon",
		"coordinates": []any{[]any{[]any{0, 0}, []any{4, 0}, []any{4, 4}, []any{0, 4}, []any{0, 0}}},
	})
	pg, ok := AsPolygon(Doc(poly))
	if !ok || !pg.Contains(geo.Point{Lng: 2, Lat: 2}) {
		t.Errorf("AsPolygon = %+v %v", pg, ok)
	}
	back := GeoJSON(Geometry{Polygon: &pg})
	if _, ok := AsPolygon(Doc(back)); !ok {
		t.Error("GeoJSON output must parse back")
	}
}

func TestSize_GrowsWithContent(t *testing.T) {
	small := mustDoc(t, map[string]any{"a": 1})
	big := mustDoc(t, map[string]any{"a": 1, "b": strings.Repeat("x", 100)})
	if small.Size() >= big.Size() {
		t.Errorf("size did not grow: %d vs %d", small.Size(), big.Size())
	}
	if New().Size() != 5 {
		t.Errorf("empty document size = %d, want 5", New().Size())
	}
}

func TestTruthy(t *testing.T) {
	falsy := []Value{Null(), Bool(false), Int(0), Float(0)}
	for _, v := range falsy {
		if v.Truthy() {
			t.Errorf("%v must be falsy", v)
		}
	}
	truthy := []Value{Bool(true), Int(1), String(""), Array(), Doc(New())}
	for _, v := range truthy {
		if !v.Truthy() {
			t.Errorf("%v must be truthy", v)
		}
	}
}

func TestEqual_FieldOrderMatters(t *testing.T) {
	a := FromFields(Field{"x", Int(1)}, Field{"y", Int(2)})
	b := FromFields(Field{"y", Int(2)}, Field{"x", Int(1)})
	if a.Equal(b) {
		t.Error("documents with different field order must not be equal")
	}
	if !a.Equal(a.Clone()) {
		t.Error("clone must equal original")
	}
}
