package fhir

import (
	"html"

	"github.com/rehab/rehab/pkg/fhirmodels"
)

const xhtmlOpen = `<div xmlns="http://www.w3.org/1999/xhtml">`

// Generated wraps text in a generated XHTML narrative. text is escaped.
func Generated(text string) *Narrative {
	return &Narrative{
		Status: fhirmodels.NarrativeGenerated,
		Div:    xhtmlOpen + html.EscapeString(text) + "</div>",
	}
}
