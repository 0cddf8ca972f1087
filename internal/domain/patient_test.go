package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestPatientSnapshot_AgeAt(t *testing.T) {
	tests := []struct {
		name    string
		birth   string
		now     string
		want    int
		wantOK  bool
		noBirth bool
	}{
		{name: "Birthday not yet reached this year", birth: "1955-06-01", now: "2025-05-01", want: 69, wantOK: true},
		{name: "Birthday already passed", birth: "1955-06-01", now: "2025-07-01", want: 70, wantOK: true},
		{name: "Exact birthday", birth: "1955-06-01", now: "2025-06-01", want: 70, wantOK: true},
		{name: "Day before birthday in same month", birth: "1955-06-15", now: "2025-06-14", want: 69, wantOK: true},
		{name: "No birth date", noBirth: true, now: "2025-05-01", wantOK: false},
		{name: "Birth date in the future", birth: "2030-01-01", now: "2025-05-01", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := PatientSnapshot{}
			if !tt.noBirth {
				b, err := time.Parse("2006-01-02", tt.birth)
				require.NoError(t, err)
				snap.BirthDate = &b
			}
			now, err := time.Parse("2006-01-02", tt.now)
			require.NoError(t, err)

			age, ok := snap.AgeAt(now)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, age)
			}
		})
	}
}

func TestPatientSnapshot_LatestVitals(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	snap := PatientSnapshot{
		Vitals: []VitalSignReading{
			{RecordedAt: base, HeartRate: f(80)},
			{RecordedAt: base.Add(2 * time.Hour), HeartRate: f(95)},
			{RecordedAt: base.Add(time.Hour), HeartRate: f(88)},
		},
	}

	latest := snap.LatestVitals()
	require.NotNil(t, latest)
	assert.Equal(t, 95.0, *latest.HeartRate)

	empty := PatientSnapshot{}
	assert.Nil(t, empty.LatestVitals())
}

func TestPatientSnapshot_FindLab(t *testing.T) {
	snap := PatientSnapshot{
		Labs: []LabResultReading{
			{Name: "Creatinina Sérica", Value: f(1.1)},
			{Name: "Creatinina Urinária", Value: f(80)},
			{Name: "Bilirrubina Total", Value: f(0.8)},
		},
	}

	tests := []struct {
		name   string
		query  string
		found  bool
		result string
	}{
		{"Substring match is case-insensitive", "creatinina", true, "Creatinina Sérica"},
		{"First match in result-list order wins", "Creatinina", true, "Creatinina Sérica"},
		{"Partial name", "Bilirrubina", true, "Bilirrubina Total"},
		{"Unknown test", "Troponina", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snap.FindLab(tt.query)
			if !tt.found {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.result, got.Name)
		})
	}
}

func TestLabResultReading_IsAbnormal(t *testing.T) {
	tests := []struct {
		name    string
		reading LabResultReading
		want    bool
	}{
		{"Explicit flag wins", LabResultReading{Abnormal: true}, true},
		{"Below low bound", LabResultReading{Value: f(0.4), RefLow: f(0.6), RefHigh: f(1.2)}, true},
		{"Above high bound", LabResultReading{Value: f(2.0), RefLow: f(0.6), RefHigh: f(1.2)}, true},
		{"Inside range", LabResultReading{Value: f(1.0), RefLow: f(0.6), RefHigh: f(1.2)}, false},
		{"No value", LabResultReading{RefLow: f(0.6), RefHigh: f(1.2)}, false},
		{"No bounds", LabResultReading{Value: f(99)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reading.IsAbnormal())
		})
	}
}

func TestPatientSnapshot_Validate(t *testing.T) {
	valid := PatientSnapshot{
		Labs:   []LabResultReading{{Name: "Plaquetas", Value: f(150)}},
		Vitals: []VitalSignReading{{RecordedAt: time.Now()}},
	}
	assert.NoError(t, valid.Validate())

	noName := PatientSnapshot{Labs: []LabResultReading{{Value: f(1)}}}
	assert.ErrorIs(t, noName.Validate(), ErrInvalidSnapshot)

	noTime := PatientSnapshot{Vitals: []VitalSignReading{{HeartRate: f(80)}}}
	assert.ErrorIs(t, noTime.Validate(), ErrInvalidSnapshot)
}

func TestVitalSignReading_Validate(t *testing.T) {
	gcsOK := 14
	valid := VitalSignReading{RecordedAt: time.Now(), GlasgowComaScale: &gcsOK, SystolicBP: f(95)}
	assert.NoError(t, valid.Validate())

	gcsHigh := 20
	err := (&VitalSignReading{GlasgowComaScale: &gcsHigh}).Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "glasgow_coma_scale", verr.Field)
	assert.Equal(t, 20, verr.Value)

	err = (&VitalSignReading{SystolicBP: f(0)}).Validate()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "systolic_bp", verr.Field)

	err = (&VitalSignReading{RespiratoryRate: f(-1)}).Validate()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "respiratory_rate", verr.Field)
}
