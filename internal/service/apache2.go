package service

import (
	"strconv"
	"time"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// Test-name substrings used to locate APACHE II lab inputs.
const (
	labArterialPH = "pH"
	labSodium     = "Sódio"
	labPotassium  = "Potássio"
	labHematocrit = "Hematócrito"
	labWBC        = "Leucócitos"
)

// computeAPACHE2 calculates the APACHE II score from fourteen physiological,
// laboratory and demographic components. Each component maps its input
// through a fixed breakpoint table; components with missing inputs default
// to 0 so an entirely empty snapshot scores exactly 0.
//
// The chronic-health component requires admission-type and chronic-disease
// history not modeled by this engine and is fixed at 0, a documented gap.
func computeAPACHE2(snap *domain.PatientSnapshot, now time.Time) *domain.ScoreResult {
	vitals := snap.LatestVitals()

	components := []domain.ScoreComponent{
		apacheAge(snap, now),
		apacheTemperature(vitals),
		apacheMeanArterialPressure(vitals),
		apacheHeartRate(vitals),
		apacheRespiratoryRate(vitals),
		apacheGlasgow(vitals),
		apacheArterialPH(snap),
		apacheSodium(snap),
		apachePotassium(snap),
		apacheCreatinine(snap),
		apacheHematocrit(snap),
		apacheWhiteBloodCells(snap),
		apacheOxygenation(snap),
		{Name: "Saúde crônica", Points: 0, Display: missingDisplay, Max: 5},
	}

	total := 0
	for _, c := range components {
		total += c.Points
	}

	return &domain.ScoreResult{
		Kind:       domain.ScoreAPACHE2,
		Total:      total,
		Components: components,
		RiskLabel:  apacheRiskLabel(total),
	}
}

// apacheAge scores the age derived from the birth date at the reference
// time. The derivation subtracts a year when the birthday has not yet been
// reached, so an incomplete year never rounds up.
func apacheAge(snap *domain.PatientSnapshot, now time.Time) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Idade", Display: missingDisplay, Max: 6}

	age, ok := snap.AgeAt(now)
	if !ok {
		return c
	}

	c.Points = scoreBands(float64(age), []band{
		{func(v float64) bool { return v < 45 }, 0},
		{func(v float64) bool { return v < 55 }, 2},
		{func(v float64) bool { return v < 65 }, 3},
		{func(v float64) bool { return v < 75 }, 5},
		{func(v float64) bool { return true }, 6},
	})
	c.Display = strconv.Itoa(age) + " anos"
	return c
}

func apacheTemperature(vitals *domain.VitalSignReading) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Temperatura", Display: missingDisplay, Max: 4}
	if vitals == nil || vitals.Temperature == nil {
		return c
	}

	temp := *vitals.Temperature
	c.Points = scoreBands(temp, []band{
		{func(v float64) bool { return v >= 41 }, 4},
		{func(v float64) bool { return v < 30 }, 4},
		{func(v float64) bool { return v >= 39 }, 3},
		{func(v float64) bool { return v < 32 }, 3},
		{func(v float64) bool { return v >= 38.5 }, 1},
		{func(v float64) bool { return v < 34 }, 1},
	})
	c.Display = formatValue(temp, "°C")
	return c
}

// apacheMeanArterialPressure scores MAP computed as (2×diastolic +
// systolic)/3 from the most recent vital reading.
func apacheMeanArterialPressure(vitals *domain.VitalSignReading) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Pressão arterial média", Display: missingDisplay, Max: 4}
	if vitals == nil || vitals.SystolicBP == nil || vitals.DiastolicBP == nil {
		return c
	}

	mapValue := (2**vitals.DiastolicBP + *vitals.SystolicBP) / 3
	c.Points = scoreBands(mapValue, []band{
		{func(v float64) bool { return v >= 160 }, 4},
		{func(v float64) bool { return v <= 49 }, 4},
		{func(v float64) bool { return v >= 130 }, 3},
		{func(v float64) bool { return v >= 110 }, 2},
		{func(v float64) bool { return v <= 69 }, 2},
	})
	c.Display = formatValue(mapValue, "mmHg")
	return c
}

func apacheHeartRate(vitals *domain.VitalSignReading) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Frequência cardíaca", Display: missingDisplay, Max: 4}
	if vitals == nil || vitals.HeartRate == nil {
		return c
	}

	hr := *vitals.HeartRate
	c.Points = scoreBands(hr, []band{
		{func(v float64) bool { return v >= 180 }, 4},
		{func(v float64) bool { return v < 40 }, 4},
		{func(v float64) bool { return v >= 140 }, 3},
		{func(v float64) bool { return v < 55 }, 3},
		{func(v float64) bool { return v >= 110 }, 2},
		{func(v float64) bool { return v < 70 }, 2},
	})
	c.Display = formatValue(hr, "bpm")
	return c
}

func apacheRespiratoryRate(vitals *domain.VitalSignReading) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Frequência respiratória", Display: missingDisplay, Max: 4}
	if vitals == nil || vitals.RespiratoryRate == nil {
		return c
	}

	rr := *vitals.RespiratoryRate
	c.Points = scoreBands(rr, []band{
		{func(v float64) bool { return v >= 50 }, 4},
		{func(v float64) bool { return v < 6 }, 4},
		{func(v float64) bool { return v >= 35 }, 3},
		{func(v float64) bool { return v >= 25 }, 1},
		{func(v float64) bool { return v < 12 }, 1},
	})
	c.Display = formatValue(rr, "irpm")
	return c
}

// apacheGlasgow converts the Glasgow Coma Scale directly: points = 15 − GCS.
func apacheGlasgow(vitals *domain.VitalSignReading) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Escala de Glasgow", Display: missingDisplay, Max: 12}
	if vitals == nil || vitals.GlasgowComaScale == nil {
		return c
	}

	gcs := *vitals.GlasgowComaScale
	points := 15 - gcs
	if points < 0 {
		points = 0
	}
	c.Points = points
	c.Display = strconv.Itoa(gcs)
	return c
}

func apacheArterialPH(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "pH arterial", Display: missingDisplay, Max: 4}

	ph, ok := labValue(snap, labArterialPH)
	if !ok {
		return c
	}

	c.Points = scoreBands(ph, []band{
		{func(v float64) bool { return v >= 7.7 }, 4},
		{func(v float64) bool { return v < 7.15 }, 4},
		{func(v float64) bool { return v >= 7.6 }, 3},
		{func(v float64) bool { return v < 7.25 }, 3},
		{func(v float64) bool { return v >= 7.5 }, 2},
		{func(v float64) bool { return v < 7.33 }, 2},
	})
	c.Display = formatValue(ph, "")
	return c
}

func apacheSodium(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Sódio", Display: missingDisplay, Max: 4}

	sodium, ok := labValue(snap, labSodium)
	if !ok {
		return c
	}

	c.Points = scoreBands(sodium, []band{
		{func(v float64) bool { return v >= 180 }, 4},
		{func(v float64) bool { return v < 110 }, 4},
		{func(v float64) bool { return v >= 160 }, 3},
		{func(v float64) bool { return v < 120 }, 3},
		{func(v float64) bool { return v >= 155 }, 2},
		{func(v float64) bool { return v < 130 }, 2},
		{func(v float64) bool { return v >= 150 }, 1},
		{func(v float64) bool { return v < 135 }, 1},
	})
	c.Display = formatValue(sodium, "mEq/L")
	return c
}

// apachePotassium keeps the redundant 3.0–3.5 band of the source table; with
// first-match-wins evaluation it is shadowed by the <3.5 band above it.
func apachePotassium(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Potássio", Display: missingDisplay, Max: 4}

	potassium, ok := labValue(snap, labPotassium)
	if !ok {
		return c
	}

	c.Points = scoreBands(potassium, []band{
		{func(v float64) bool { return v >= 7 }, 4},
		{func(v float64) bool { return v < 2.5 }, 4},
		{func(v float64) bool { return v >= 6 }, 3},
		{func(v float64) bool { return v < 3 }, 3},
		{func(v float64) bool { return v >= 5.5 }, 1},
		{func(v float64) bool { return v < 3.5 }, 1},
		{func(v float64) bool { return v >= 3.0 && v < 3.5 }, 1},
	})
	c.Display = formatValue(potassium, "mEq/L")
	return c
}

func apacheCreatinine(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Creatinina", Display: missingDisplay, Max: 4}

	creatinine, ok := labValue(snap, labCreatinine)
	if !ok {
		return c
	}

	c.Points = scoreBands(creatinine, []band{
		{func(v float64) bool { return v >= 3.5 }, 4},
		{func(v float64) bool { return v >= 2 }, 3},
		{func(v float64) bool { return v >= 1.5 }, 2},
		{func(v float64) bool { return v < 0.6 }, 2},
	})
	c.Display = formatValue(creatinine, "mg/dL")
	return c
}

func apacheHematocrit(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Hematócrito", Display: missingDisplay, Max: 4}

	hct, ok := labValue(snap, labHematocrit)
	if !ok {
		return c
	}

	c.Points = scoreBands(hct, []band{
		{func(v float64) bool { return v >= 60 }, 4},
		{func(v float64) bool { return v < 20 }, 4},
		{func(v float64) bool { return v >= 50 }, 2},
		{func(v float64) bool { return v < 30 }, 2},
	})
	c.Display = formatValue(hct, "%")
	return c
}

func apacheWhiteBloodCells(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Leucócitos", Display: missingDisplay, Max: 4}

	wbc, ok := labValue(snap, labWBC)
	if !ok {
		return c
	}

	c.Points = scoreBands(wbc, []band{
		{func(v float64) bool { return v >= 40 }, 4},
		{func(v float64) bool { return v < 1 }, 4},
		{func(v float64) bool { return v >= 20 }, 2},
		{func(v float64) bool { return v < 3 }, 2},
		{func(v float64) bool { return v >= 15 }, 1},
	})
	c.Display = formatValue(wbc, "×10³/µL")
	return c
}

// apacheOxygenation scores PaO2 only when the respiratory ratio is
// unavailable (no FiO2 charted). The ≤70 band of the source table survives
// only for a value of exactly 70 under first-match-wins evaluation.
func apacheOxygenation(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Oxigenação (PaO2)", Display: missingDisplay, Max: 4}

	if _, hasFiO2 := labValue(snap, labFiO2); hasFiO2 {
		return c
	}
	pao2, ok := labValue(snap, labPaO2)
	if !ok {
		return c
	}

	c.Points = scoreBands(pao2, []band{
		{func(v float64) bool { return v < 55 }, 4},
		{func(v float64) bool { return v < 70 }, 3},
		{func(v float64) bool { return v <= 70 }, 1},
	})
	c.Display = formatValue(pao2, "mmHg")
	return c
}

// apacheRiskLabel maps an APACHE II total to its mortality band.
func apacheRiskLabel(total int) string {
	switch {
	case total >= 35:
		return "Extremamente Grave (Mortalidade >85%)"
	case total >= 25:
		return "Muito Grave (55-85%)"
	case total >= 15:
		return "Grave (25-55%)"
	case total >= 10:
		return "Moderado (10-25%)"
	default:
		return "Leve (<10%)"
	}
}
