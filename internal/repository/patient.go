package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// PatientRepository handles patient data persistence
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

// CreatePatient inserts a new patient into the database
func (r *PatientRepository) CreatePatient(ctx context.Context, patient *domain.Patient) error {
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}

	query := `
		INSERT INTO patients (id, name, birth_date)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		patient.ID,
		patient.Name,
		patient.BirthDate,
	).Scan(&patient.CreatedAt, &patient.UpdatedAt)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patient.ID,
			"error":      err,
		}).Error("Failed to create patient")
		return fmt.Errorf("creating patient: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"name":       patient.Name,
	}).Info("Patient created successfully")

	return nil
}

// GetPatient retrieves a patient by ID
func (r *PatientRepository) GetPatient(ctx context.Context, id uuid.UUID) (*domain.Patient, error) {
	query := `
		SELECT id, name, birth_date, created_at, updated_at
		FROM patients
		WHERE id = $1`

	var patient domain.Patient
	err := r.db.QueryRow(ctx, query, id).Scan(
		&patient.ID,
		&patient.Name,
		&patient.BirthDate,
		&patient.CreatedAt,
		&patient.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("patient not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to get patient by ID")
		return nil, fmt.Errorf("getting patient by ID: %w", err)
	}

	return &patient, nil
}

// ListPatients retrieves patients with pagination
func (r *PatientRepository) ListPatients(ctx context.Context, limit, offset int) ([]*domain.Patient, error) {
	query := `
		SELECT id, name, birth_date, created_at, updated_at
		FROM patients
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list patients")
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	var patients []*domain.Patient
	for rows.Next() {
		var patient domain.Patient
		err := rows.Scan(
			&patient.ID,
			&patient.Name,
			&patient.BirthDate,
			&patient.CreatedAt,
			&patient.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning patient row: %w", err)
		}
		patients = append(patients, &patient)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patient rows: %w", err)
	}

	return patients, nil
}

// DeletePatient removes a patient and its dependent records
func (r *PatientRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to delete patient")
		return fmt.Errorf("deleting patient: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("patient not found: %w", domain.ErrNotFound)
	}

	r.log.WithField("patient_id", id).Info("Patient deleted successfully")
	return nil
}

// AddExam inserts an exam event and its lab results in a single transaction.
// Lab result rows keep their position so snapshot loads preserve the charted
// order.
func (r *PatientRepository) AddExam(ctx context.Context, exam *domain.ExamRecord) error {
	if exam.ID == uuid.Nil {
		exam.ID = uuid.New()
	}
	if exam.CollectedAt.IsZero() {
		exam.CollectedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning exam transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO exams (id, patient_id, collected_at) VALUES ($1, $2, $3)`,
		exam.ID, exam.PatientID, exam.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("creating exam: %w", err)
	}

	for i := range exam.Labs {
		lab := &exam.Labs[i]
		if lab.ID == "" {
			lab.ID = uuid.NewString()
		}
		if lab.CollectedAt.IsZero() {
			lab.CollectedAt = exam.CollectedAt
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO lab_results (
				id, exam_id, position, test_name, value, unit,
				ref_low, ref_high, abnormal, collected_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			lab.ID, exam.ID, i, lab.Name, lab.Value, lab.Unit,
			lab.RefLow, lab.RefHigh, lab.Abnormal, lab.CollectedAt,
		)
		if err != nil {
			return fmt.Errorf("creating lab result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing exam transaction: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"exam_id":    exam.ID,
		"patient_id": exam.PatientID,
		"labs":       len(exam.Labs),
	}).Info("Exam recorded successfully")

	return nil
}

// AddVitalSigns inserts a vital-sign reading for a patient
func (r *PatientRepository) AddVitalSigns(ctx context.Context, patientID uuid.UUID, reading *domain.VitalSignReading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO vital_signs (
			id, patient_id, recorded_at, heart_rate, systolic_bp, diastolic_bp,
			temperature, respiratory_rate, oxygen_saturation, glasgow_coma_scale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		reading.ID, patientID, reading.RecordedAt,
		reading.HeartRate, reading.SystolicBP, reading.DiastolicBP,
		reading.Temperature, reading.RespiratoryRate, reading.OxygenSaturation,
		reading.GlasgowComaScale,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to record vital signs")
		return fmt.Errorf("creating vital signs: %w", err)
	}

	return nil
}

// LoadSnapshot assembles the scoring view of a patient: the birth date, the
// most recent exam's lab results in charted order, and every vital-sign
// reading ordered by timestamp.
func (r *PatientRepository) LoadSnapshot(ctx context.Context, patientID uuid.UUID) (*domain.PatientSnapshot, error) {
	patient, err := r.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	snap := &domain.PatientSnapshot{
		PatientID: patient.ID.String(),
		BirthDate: patient.BirthDate,
	}

	labs, err := r.latestExamLabs(ctx, patientID)
	if err != nil {
		return nil, err
	}
	snap.Labs = labs

	vitals, err := r.patientVitals(ctx, patientID)
	if err != nil {
		return nil, err
	}
	snap.Vitals = vitals

	return snap, nil
}

// latestExamLabs returns the lab results of the patient's most recent exam.
func (r *PatientRepository) latestExamLabs(ctx context.Context, patientID uuid.UUID) ([]domain.LabResultReading, error) {
	var examID uuid.UUID
	err := r.db.QueryRow(ctx, `
		SELECT id FROM exams
		WHERE patient_id = $1
		ORDER BY collected_at DESC
		LIMIT 1`, patientID,
	).Scan(&examID)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest exam: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, test_name, value, unit, ref_low, ref_high, abnormal, collected_at
		FROM lab_results
		WHERE exam_id = $1
		ORDER BY position`, examID)
	if err != nil {
		return nil, fmt.Errorf("getting lab results: %w", err)
	}
	defer rows.Close()

	var labs []domain.LabResultReading
	for rows.Next() {
		var lab domain.LabResultReading
		err := rows.Scan(
			&lab.ID, &lab.Name, &lab.Value, &lab.Unit,
			&lab.RefLow, &lab.RefHigh, &lab.Abnormal, &lab.CollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning lab result row: %w", err)
		}
		labs = append(labs, lab)
	}

	return labs, rows.Err()
}

// patientVitals returns every vital-sign reading for a patient.
func (r *PatientRepository) patientVitals(ctx context.Context, patientID uuid.UUID) ([]domain.VitalSignReading, error) {
	rows, err := r.db.Query(ctx, `
		SELECT recorded_at, heart_rate, systolic_bp, diastolic_bp,
			temperature, respiratory_rate, oxygen_saturation, glasgow_coma_scale
		FROM vital_signs
		WHERE patient_id = $1
		ORDER BY recorded_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("getting vital signs: %w", err)
	}
	defer rows.Close()

	var vitals []domain.VitalSignReading
	for rows.Next() {
		var v domain.VitalSignReading
		err := rows.Scan(
			&v.RecordedAt, &v.HeartRate, &v.SystolicBP, &v.DiastolicBP,
			&v.Temperature, &v.RespiratoryRate, &v.OxygenSaturation,
			&v.GlasgowComaScale,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning vital sign row: %w", err)
		}
		vitals = append(vitals, v)
	}

	return vitals, rows.Err()
}
