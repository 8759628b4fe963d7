package docstore

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRenderWhere_JSONPath(t *testing.T) {
	args := &pgArgs{}
	args.add("Reports")
	where, err := renderWhere(And(
		Eq("user_id", "u-1"),
		ElemMatch("entry",
			Eq("resource.code.text", "A - B - rep1"),
			Eq("resource.effectiveDateTime", "2025-01-01T00:00:00+05:30"),
		),
	), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(where, "jsonb_path_exists(body, $2::jsonpath, $3::jsonb)") {
		t.Errorf("unexpected where clause: %s", where)
	}
	if args.values[1] != `$ ? (@."user_id" == $v1)` {
		t.Errorf("unexpected path: %v", args.values[1])
	}
	want := `$ ? (exists(@."entry"[*] ? ((@."resource"."code"."text" == $v1 && @."resource"."effectiveDateTime" == $v2))))`
	if args.values[3] != want {
		t.Errorf("unexpected elem match path:\n got %v\nwant %s", args.values[3], want)
	}
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(args.values[4].(string)), &vars); err != nil {
		t.Fatal(err)
	}
	if vars["v2"] != "2025-01-01T00:00:00+05:30" {
		t.Errorf("unexpected vars: %v", vars)
	}
}

func TestRenderWhere_SpecialCases(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		want string
	}{
		{"all", All(), "TRUE"},
		{"bad id", ByID("not-a-uuid"), "FALSE"},
		{"id", ByID("2b7f0d1e-8f0a-4c3e-9a55-0d5cb8e4a111"), "id = $1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderWhere(tt.f, &pgArgs{})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPredicate_InAndIndex(t *testing.T) {
	vars := newPathVars()
	got, err := renderPredicate(In("therapist"), vars)
	if err != nil {
		t.Fatal(err)
	}
	if got != "(1 == 0)" {
		t.Errorf("empty In: got %s", got)
	}
	got, err = renderPredicate(In("entry.0.resource.id", "a", "b"), vars)
	if err != nil {
		t.Fatal(err)
	}
	if got != `(@."entry"[0]."resource"."id" == $v1 || @."entry"[0]."resource"."id" == $v2)` {
		t.Errorf("got %s", got)
	}
	if _, err := renderPredicate(ByID("x"), vars); err == nil {
		t.Error("expected error for nested ByID")
	}
}

func TestBuildUpdateSQL(t *testing.T) {
	sql, args, err := buildUpdateSQL(Reports, Eq("user_id", "u-1"),
		SetWhere("entry", []Filter{Eq("resource.code.text", "x")}, "resource.valueQuantity", map[string]float64{"value": 1}).
			Push("entry", map[string]string{"fullUrl": "urn:uuid:1"}))
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range []string{
		"FOR UPDATE",
		"IS DISTINCT FROM",
		"jsonb_array_elements(body #> $4::text[]) WITH ORDINALITY",
		"COALESCE(",
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("expected %q in sql:\n%s", frag, sql)
		}
	}
	if args[0] != Reports {
		t.Errorf("expected collection as first arg, got %v", args[0])
	}
	path, ok := args[3].([]string)
	if !ok || len(path) != 1 || path[0] != "entry" {
		t.Errorf("unexpected array path arg: %#v", args[3])
	}
}

func TestRenderUpdate_Empty(t *testing.T) {
	if _, err := renderUpdate(Update{}, &pgArgs{}); err == nil {
		t.Error("expected error for empty update")
	}
}

func TestRenderUpdate_SetWhereKeepsEmptyArray(t *testing.T) {
	expr, err := renderUpdate(SetWhere("entry", []Filter{Eq("resource.code.text", "Flag")}, "resource.valueString", "1"), &pgArgs{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(expr, "COALESCE((SELECT jsonb_agg(") || !strings.Contains(expr, "WITH ORDINALITY AS x(elem, ord)), '[]'::jsonb)") {
		t.Errorf("aggregate over an empty array must fall back to []:\n%s", expr)
	}
}
