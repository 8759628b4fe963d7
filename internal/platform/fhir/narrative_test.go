package fhir

import (
	"strings"
	"testing"
)

func TestGenerated(t *testing.T) {
	n := Generated("FSR16 - Rep 1 - Biceps - Value 2")
	if n.Status != "generated" {
		t.Errorf("expected generated status, got %q", n.Status)
	}
	want := `<div xmlns="http://www.w3.org/1999/xhtml">FSR16 - Rep 1 - Biceps - Value 2</div>`
	if n.Div != want {
		t.Errorf("unexpected div:\n got %s\nwant %s", n.Div, want)
	}
}

func TestGenerated_EscapesMarkup(t *testing.T) {
	n := Generated(`<script>alert("x")</script> & co`)
	if strings.Contains(n.Div, "<script>") {
		t.Errorf("script tag was not escaped: %s", n.Div)
	}
	if !strings.Contains(n.Div, "&lt;script&gt;") || !strings.Contains(n.Div, "&amp; co") {
		t.Errorf("unexpected escaping: %s", n.Div)
	}
	if !strings.HasSuffix(n.Div, "</div>") {
		t.Errorf("expected closing div, got %s", n.Div)
	}
}
