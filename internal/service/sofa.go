package service

import (
	"time"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// sofaMaxComponent is the upper bound of every SOFA organ sub-score.
const sofaMaxComponent = 4

// Test-name substrings used to locate SOFA inputs in the most-recent exam.
const (
	labPaO2      = "PaO2"
	labFiO2      = "FiO2"
	labPlatelets = "Plaquetas"
	labBilirubin = "Bilirrubina"
	labCreatinine = "Creatinina"
)

// computeSOFA calculates the Sequential Organ Failure Assessment score: six
// organ-system sub-scores, each in [0,4], summed to a total in [0,24].
//
// The cardiovascular sub-score requires mean arterial pressure under
// vasopressor therapy and the neurological sub-score a dedicated GCS pathway;
// neither input is modeled on the lab path this engine scores from, so both
// always contribute 0. These are documented gaps, not defects.
func computeSOFA(snap *domain.PatientSnapshot, _ time.Time) *domain.ScoreResult {
	components := []domain.ScoreComponent{
		sofaRespiratory(snap),
		sofaCoagulation(snap),
		sofaLiver(snap),
		{Name: "Cardiovascular", Points: 0, Display: missingDisplay, Max: sofaMaxComponent},
		{Name: "Neurológico", Points: 0, Display: missingDisplay, Max: sofaMaxComponent},
		sofaRenal(snap),
	}

	total := 0
	for _, c := range components {
		total += c.Points
	}

	return &domain.ScoreResult{
		Kind:       domain.ScoreSOFA,
		Total:      total,
		Components: components,
		RiskLabel:  sofaRiskLabel(total),
	}
}

// sofaRespiratory scores the PaO2/FiO2 ratio. FiO2 charted as a percentage
// (>1) is converted to a fraction before the ratio is taken.
func sofaRespiratory(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Respiratório (PaO2/FiO2)", Display: missingDisplay, Max: sofaMaxComponent}

	pao2, okP := labValue(snap, labPaO2)
	fio2, okF := labValue(snap, labFiO2)
	if !okP || !okF || fio2 == 0 {
		return c
	}
	if fio2 > 1 {
		fio2 /= 100
	}

	ratio := pao2 / fio2
	c.Points = scoreBands(ratio, []band{
		{func(v float64) bool { return v < 100 }, 4},
		{func(v float64) bool { return v < 200 }, 3},
		{func(v float64) bool { return v < 300 }, 2},
		{func(v float64) bool { return v < 400 }, 1},
	})
	c.Display = formatValue(ratio, "")
	return c
}

// sofaCoagulation scores the platelet count in ×10³/µL.
func sofaCoagulation(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Coagulação (Plaquetas)", Display: missingDisplay, Max: sofaMaxComponent}

	platelets, ok := labValue(snap, labPlatelets)
	if !ok {
		return c
	}

	c.Points = scoreBands(platelets, []band{
		{func(v float64) bool { return v < 20 }, 4},
		{func(v float64) bool { return v < 50 }, 3},
		{func(v float64) bool { return v < 100 }, 2},
		{func(v float64) bool { return v < 150 }, 1},
	})
	c.Display = formatValue(platelets, "×10³/µL")
	return c
}

// sofaLiver scores total bilirubin in mg/dL.
func sofaLiver(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Hepático (Bilirrubina)", Display: missingDisplay, Max: sofaMaxComponent}

	bilirubin, ok := labValue(snap, labBilirubin)
	if !ok {
		return c
	}

	c.Points = scoreBands(bilirubin, []band{
		{func(v float64) bool { return v > 12 }, 4},
		{func(v float64) bool { return v > 6 }, 3},
		{func(v float64) bool { return v > 2 }, 2},
		{func(v float64) bool { return v > 1.2 }, 1},
	})
	c.Display = formatValue(bilirubin, "mg/dL")
	return c
}

// sofaRenal scores serum creatinine in mg/dL.
func sofaRenal(snap *domain.PatientSnapshot) domain.ScoreComponent {
	c := domain.ScoreComponent{Name: "Renal (Creatinina)", Display: missingDisplay, Max: sofaMaxComponent}

	creatinine, ok := labValue(snap, labCreatinine)
	if !ok {
		return c
	}

	c.Points = scoreBands(creatinine, []band{
		{func(v float64) bool { return v > 5 }, 4},
		{func(v float64) bool { return v > 3.5 }, 3},
		{func(v float64) bool { return v > 2 }, 2},
		{func(v float64) bool { return v > 1.2 }, 1},
	})
	c.Display = formatValue(creatinine, "mg/dL")
	return c
}

// sofaRiskLabel maps a SOFA total to its risk band.
func sofaRiskLabel(total int) string {
	switch {
	case total >= 12:
		return "Crítico"
	case total >= 8:
		return "Grave"
	case total >= 4:
		return "Moderado"
	default:
		return "Leve"
	}
}
