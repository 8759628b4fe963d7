package fhirmodels

// Common FHIR value set constants used across the application.

// Observation code texts carried by patient bundles.
const (
	CodeUserID            = "User Id"
	CodeTherapistAssigned = "Therapist Assigned"
	CodeUsername          = "Username"
	CodeEmail             = "Email"
	CodePhoneNumber       = "Phone Number"
	CodeBloodGroup        = "Blood Group"
	CodeFlag              = "Flag"
	CodeHeight            = "Height (cm)"
	CodeWeight            = "Weight (kg)"
)

// Component code texts carried by per-sample exercise observations.
const (
	ComponentMuscleGroup = "Muscle Group"
	ComponentRepLabel    = "Rep Label"
	ComponentDeviceUsed  = "Device Used"
	ComponentValueIndex  = "Value Index"
)

// Flag values. A patient's flag flips to FlagHasExercises on the first
// exercise upload and is never cleared.
const (
	FlagNoExercises  = "0"
	FlagHasExercises = "1"
)

// Resource status values.
const (
	StatusFinal         = "final"
	NarrativeGenerated  = "generated"
	PerformerSystemAuto = "System Auto"
)

// UCUM units.
const (
	UnitsOfMeasureSystem = "http://unitsofmeasure.org"
	UnitCentimetre       = "cm"
	UnitKilogram         = "kg"
	UnitKilogramForce    = "kgf"
)

// Identifier systems.
const (
	TestIDSystem = "http://yourdomain.org/test-id"
)

// ContactPoint systems.
const (
	TelecomEmail = "email"
)

// Practitioner qualification text and default photo content type.
const (
	QualificationTherapist = "Therapist"
	PhotoContentType       = "image/jpeg"
)

// Gender values.
const (
	GenderUnknown = "unknown"
)

// BirthDateUnknown is stored when a patient registers without a date of birth.
const BirthDateUnknown = "unknown"
