package service

import (
	"strconv"
	"time"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// computeQSOFA calculates the quick SOFA score from the most recent
// vital-sign reading only. Each of the three criteria contributes one point
// when met; a criterion with a missing input is treated as absent, never as
// an error.
func computeQSOFA(snap *domain.PatientSnapshot, _ time.Time) *domain.ScoreResult {
	vitals := snap.LatestVitals()

	rr := domain.ScoreComponent{Name: "Frequência respiratória ≥22/min", Display: missingDisplay, Max: 1}
	gcs := domain.ScoreComponent{Name: "Alteração do estado mental (Glasgow <15)", Display: missingDisplay, Max: 1}
	sbp := domain.ScoreComponent{Name: "Pressão arterial sistólica ≤100 mmHg", Display: missingDisplay, Max: 1}

	if vitals != nil {
		if vitals.RespiratoryRate != nil {
			if *vitals.RespiratoryRate >= 22 {
				rr.Points = 1
			}
			rr.Display = formatValue(*vitals.RespiratoryRate, "irpm")
		}
		if vitals.GlasgowComaScale != nil {
			if *vitals.GlasgowComaScale < 15 {
				gcs.Points = 1
			}
			gcs.Display = strconv.Itoa(*vitals.GlasgowComaScale)
		}
		if vitals.SystolicBP != nil {
			if *vitals.SystolicBP <= 100 {
				sbp.Points = 1
			}
			sbp.Display = formatValue(*vitals.SystolicBP, "mmHg")
		}
	}

	components := []domain.ScoreComponent{rr, gcs, sbp}
	total := rr.Points + gcs.Points + sbp.Points

	return &domain.ScoreResult{
		Kind:       domain.ScoreQSOFA,
		Total:      total,
		Components: components,
		RiskLabel:  qsofaRiskLabel(total),
	}
}

// qsofaRiskLabel flags totals of two or more as positive screens.
func qsofaRiskLabel(total int) string {
	if total >= 2 {
		return "Positivo (Risco ↑)"
	}
	return "Negativo"
}
