package fhir

import (
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

// Filters over stored bundles. Every predicate about a resource is scoped to
// a single entry; combine several with docstore.And when they may be
// satisfied by different entries of the same bundle.

// EntryMatch matches bundles with one entry whose resource has the given
// type and satisfies every cond. Condition paths start at the entry, so
// resource fields are addressed as "resource.<field>".
func EntryMatch(resourceType string, conds ...docstore.Filter) docstore.Filter {
	all := make([]docstore.Filter, 0, len(conds)+1)
	all = append(all, docstore.Eq("resource.resourceType", resourceType))
	all = append(all, conds...)
	return docstore.ElemMatch("entry", all...)
}

// ObservationIs matches bundles holding an Observation coded code whose
// valueString is value.
func ObservationIs(code, value string) docstore.Filter {
	return EntryMatch(TypeObservation,
		docstore.Eq("resource.code.text", code),
		docstore.Eq("resource.valueString", value),
	)
}

// ObservationCoded matches bundles holding any Observation coded code.
func ObservationCoded(code string) docstore.Filter {
	return EntryMatch(TypeObservation, docstore.Eq("resource.code.text", code))
}

func PatientNamed(given, family string) docstore.Filter {
	return EntryMatch(TypePatient,
		docstore.Eq("resource.name.0.given.0", given),
		docstore.Eq("resource.name.0.family", family),
	)
}

// PractitionerEmail matches therapist bundles whose Practitioner has an
// email telecom equal to email.
func PractitionerEmail(email string) docstore.Filter {
	return EntryMatch(TypePractitioner,
		docstore.ElemMatch("resource.telecom",
			docstore.Eq("system", fhirmodels.TelecomEmail),
			docstore.Eq("value", email),
		),
	)
}

// SubjectLookup is the composite lookup of a patient bundle by email and
// name. Each predicate holds on its own entry.
func SubjectLookup(email, given, family string) docstore.Filter {
	return docstore.And(
		ObservationIs(fhirmodels.CodeEmail, email),
		PatientNamed(given, family),
	)
}
