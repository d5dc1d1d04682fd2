// Package physio provides the physiological and numerical constants shared by
// the transport engine and the homeostatic controller.
// Units: flows in mol/hr, concentrations in mmol/L, GFR in L/hr.
package physio

// Unit conversions.
const (
	// WaterMolarMass is the molar mass of water in g/mol.
	WaterMolarMass = 18.0

	// WaterDensity is the density of water in g/L.
	WaterDensity = 1000.0

	// MillimolesPerMole converts mmol/L concentrations to mol flows.
	MillimolesPerMole = 1000.0

	// HoursPerDay scales hourly flows to daily totals.
	HoursPerDay = 24.0
)

// Epsilon is added to every stream volume before dividing, so a stream with
// exactly zero water still yields a finite concentration.
const Epsilon = 1e-9

// Saturation bounds for reabsorption fractions.
const (
	RateFloor   = 0.0
	RateCeiling = 0.99

	// SecretionFloor is the lower bound for potassium in the collecting ducts,
	// where a negative fraction models net secretion.
	SecretionFloor = -5.0
)

// Tubuloglomerular feedback.
const (
	// TGFIterations is the fixed number of GFR refinement passes per day.
	TGFIterations = 5

	// GFRMin and GFRMax bound the TGF-adjusted filtration rate (L/hr).
	GFRMin = 90.0
	GFRMax = 120.0

	// DeliveryFloor is the smallest NaCl delivery (mol/hr) the TGF step will divide by.
	DeliveryFloor = 1e-12
)

// Healthy adult defaults.
const (
	BaselineGFR = 105.0 // L/hr (105/60 L/min on the hourly scale)
	BodyWater   = 42.0  // L

	SodiumSetpoint      = 140.0
	PotassiumSetpoint   = 4.25
	BicarbonateSetpoint = 24.0
	UreaSetpoint        = 4.75
	ChlorideSetpoint    = 101.0
	GlucoseSetpoint     = 5.0
)

// Dead-bands around each controlled setpoint (mmol/L).
var (
	SodiumBand      = Band{Tolerance: 0.5}
	PotassiumBand   = Band{Tolerance: 0.1}
	BicarbonateBand = Band{Tolerance: 0.5}
)
