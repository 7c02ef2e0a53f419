package domain

import (
	"encoding/json"
	"testing"
)

func TestPayloadPreservesKeyOrder(t *testing.T) {
	var p Payload
	p.Set("zulu", IntValue(1))
	p.Set("alpha", StringValue("a"))
	p.Set("mike", BoolValue(true))

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"zulu":1,"alpha":"a","mike":true}`
	if string(data) != want {
		t.Fatalf("order lost: got %s want %s", data, want)
	}

	var back Payload
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := back.Keys()
	if len(keys) != 3 || keys[0] != "zulu" || keys[1] != "alpha" || keys[2] != "mike" {
		t.Fatalf("decoded order wrong: %v", keys)
	}

	again, err := json.Marshal(back)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	if string(again) != want {
		t.Fatalf("round trip unstable: %s", again)
	}
}

func TestPayloadNestedRoundTrip(t *testing.T) {
	raw := `{"outer":{"b":2,"a":[1,2.5,"x",null,true]},"empty":{}}`
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("nested round trip changed document:\n got %s\nwant %s", out, raw)
	}

	outer, _ := p.Get("outer")
	inner, ok := outer.AsMap()
	if !ok {
		t.Fatalf("outer is %s, expected map", outer.Kind())
	}
	b, _ := inner.Get("b")
	if i, ok := b.AsInt(); !ok || i != 2 {
		t.Fatalf("integral JSON number should decode as int, got %v", b.Kind())
	}
	a, _ := inner.Get("a")
	list, _ := a.AsList()
	if len(list) != 5 || list[1].Kind() != KindFloat || list[3].Kind() != KindNull {
		t.Fatalf("list decoded wrong: %v", list)
	}
}

func TestValueOfConversions(t *testing.T) {
	v, err := ValueOf(float64(7))
	if err != nil {
		t.Fatalf("valueof: %v", err)
	}
	if i, ok := v.AsInt(); !ok || i != 7 {
		t.Fatalf("integral float should become int, got %v", v.Kind())
	}
	v, err = ValueOf(7.25)
	if err != nil {
		t.Fatalf("valueof: %v", err)
	}
	if f, ok := v.AsFloat(); !ok || f != 7.25 {
		t.Fatalf("fractional float mangled: %v", f)
	}
	v, err = ValueOf([]string{"a", "b"})
	if err != nil {
		t.Fatalf("valueof: %v", err)
	}
	if list, ok := v.AsList(); !ok || len(list) != 2 {
		t.Fatalf("string slice should become list, got %v", v.Kind())
	}
	if _, err := ValueOf(struct{}{}); err == nil {
		t.Fatal("expected error for unsupported type")
	} else if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
}

func TestPayloadSetDeleteOverwrite(t *testing.T) {
	var p Payload
	p.Set("a", IntValue(1))
	p.Set("b", IntValue(2))
	p.Set("a", IntValue(3)) // overwrite keeps position
	if keys := p.Keys(); len(keys) != 2 || keys[0] != "a" {
		t.Fatalf("overwrite moved key: %v", keys)
	}
	a, _ := p.Get("a")
	if i, _ := a.AsInt(); i != 3 {
		t.Fatalf("overwrite lost value: %d", i)
	}
	p.Delete("a")
	if _, ok := p.Get("a"); ok || p.Len() != 1 {
		t.Fatalf("delete failed: %v", p.Keys())
	}
	p.Delete("missing") // no-op
}

func TestPayloadFromMapSortsKeys(t *testing.T) {
	p, err := PayloadFromMap(map[string]any{"b": 1, "a": 2, "c": nil})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if keys := p.Keys(); keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("keys not sorted: %v", keys)
	}
	if _, err := PayloadFromMap(map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected error for unserializable value")
	}
}
