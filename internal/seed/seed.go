// Package seed loads a demo clinic into an empty store for local development.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/Hervar88/DentiFlow/internal/appointments"
	"github.com/Hervar88/DentiFlow/internal/clinics"
	"github.com/Hervar88/DentiFlow/internal/dentists"
	"github.com/Hervar88/DentiFlow/internal/patients"
	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// DemoSlug is the public slug of the seeded clinic.
const DemoSlug = "sonrisa-perfecta"

var demoReasons = []string{"Revisión general", "Limpieza dental", "Endodoncia molar #36", "Ajuste de brackets", "Blanqueamiento"}

// Stores are the repositories the seed writes to.
type Stores struct {
	Clinics      clinics.Repository
	Dentists     dentists.Repository
	Patients     patients.Repository
	Appointments appointments.Store
}

// Result summarizes what was created.
type Result struct {
	Seeded       bool
	ClinicID     uuid.UUID
	Dentists     int
	Patients     int
	Appointments int
}

// Seeder fills an empty database with one clinic, its dentists, fake
// patients and a few upcoming appointments.
type Seeder struct {
	stores   Stores
	faker    *gofakeit.Faker
	patients int
	now      func() time.Time
	logger   *logging.Logger
}

// New returns a Seeder; seed 0 picks a random seed.
func New(stores Stores, seed uint64, logger *logging.Logger) *Seeder {
	if stores.Clinics == nil || stores.Dentists == nil || stores.Patients == nil || stores.Appointments == nil {
		panic("seed: all stores required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Seeder{stores: stores, faker: gofakeit.New(seed), patients: 6, now: time.Now, logger: logger}
}

// Run seeds only when no clinic exists yet.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	count, err := s.stores.Clinics.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("seed: count clinics: %w", err)
	}
	if count > 0 {
		s.logger.Debug("seed skipped, clinics already present", "count", count)
		return Result{}, nil
	}

	clinic := &clinics.Clinic{
		Name:        "Sonrisa Perfecta",
		Slug:        DemoSlug,
		Phone:       "+52 55 1234 5678",
		Address:     "Av. Reforma 123, Col. Centro, CDMX",
		Description: "Clínica dental especializada en ortodoncia, implantes y estética dental con más de 10 años de experiencia.",
		Specialties: []string{"Ortodoncia", "Implantes", "Endodoncia", "Estética Dental", "Limpieza"},
	}
	if err := s.stores.Clinics.Create(ctx, clinic); err != nil {
		return Result{}, fmt.Errorf("seed: create clinic: %w", err)
	}
	res := Result{Seeded: true, ClinicID: clinic.ID}

	roster := []dentists.CreateRequest{
		{ClinicID: clinic.ID, FirstName: "Carlos", LastName: "Ramírez", Email: "carlos@sonrisaperfecta.mx", Specialty: "Ortodoncia", Phone: "+52 55 9876 5432"},
		{ClinicID: clinic.ID, FirstName: "María", LastName: "González", Email: "maria@sonrisaperfecta.mx", Specialty: "Endodoncia", Phone: "+52 55 5555 1234"},
	}
	var team []*dentists.Dentist
	for i := range roster {
		d, err := s.stores.Dentists.Create(ctx, &roster[i])
		if err != nil {
			return res, fmt.Errorf("seed: create dentist: %w", err)
		}
		team = append(team, d)
		res.Dentists++
	}

	var people []*patients.Patient
	for i := 0; i < s.patients; i++ {
		first, last := s.faker.FirstName(), s.faker.LastName()
		p, err := s.stores.Patients.Create(ctx, &patients.CreateRequest{
			ClinicID:  clinic.ID,
			FirstName: first,
			LastName:  last,
			Email:     strings.ToLower(first+"."+last) + "@example.com",
			Phone:     s.faker.Numerify("+52 55 #### ####"),
		})
		if err != nil {
			return res, fmt.Errorf("seed: create patient: %w", err)
		}
		people = append(people, p)
		res.Patients++
	}

	// Upcoming slots start tomorrow at 09:00 UTC, one hour apart per dentist.
	day := s.now().UTC().Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)
	for i, p := range people {
		dentist := team[i%len(team)]
		appt := &appointments.Appointment{
			ID:              uuid.New(),
			ClinicID:        clinic.ID,
			DentistID:       dentist.ID,
			PatientID:       p.ID,
			StartsAt:        day.Add(time.Duration(i/len(team)) * time.Hour),
			DurationMinutes: []int{30, 45, 60}[s.faker.Number(0, 2)],
			Reason:          demoReasons[s.faker.Number(0, len(demoReasons)-1)],
			Status:          appointments.StatusPending,
			CreatedAt:       s.now().UTC(),
		}
		if i == 0 {
			appt.Status = appointments.StatusConfirmed
		}
		if err := s.stores.Appointments.Create(ctx, appt); err != nil {
			return res, fmt.Errorf("seed: create appointment: %w", err)
		}
		res.Appointments++
	}

	s.logger.Info("demo data seeded",
		"clinic_id", clinic.ID,
		"slug", clinic.Slug,
		"dentists", res.Dentists,
		"patients", res.Patients,
		"appointments", res.Appointments,
	)
	return res, nil
}
