// Package persistence implements the job-store surface on PostgreSQL.
// Technicians, vans and equipment live in independent tables joined at
// query time into the plain records the planner consumes.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrJobNotFound is returned when an update targets a missing job.
var ErrJobNotFound = errors.New("job not found")

// PostgresJobStore implements domain.JobStore using PostgreSQL.
type PostgresJobStore struct {
	pool *pgxpool.Pool
}

// NewPostgresJobStore creates a new PostgreSQL job store.
func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

// GetActiveTechnicians joins technicians with their van's current
// position and their home address.
func (s *PostgresJobStore) GetActiveTechnicians(ctx context.Context) ([]*domain.Technician, error) {
	query := `
		SELECT t.id, t.user_id, t.assigned_van_id, t.workload,
		       v.lat, v.lng,
		       ha.lat, ha.lng
		FROM technicians t
		LEFT JOIN vans v ON v.id = t.assigned_van_id
		LEFT JOIN addresses ha ON ha.id = t.home_address_id
		WHERE t.active
		ORDER BY t.id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active technicians: %w", err)
	}
	defer rows.Close()

	technicians := make([]*domain.Technician, 0)
	for rows.Next() {
		var (
			tech             domain.Technician
			vanLat, vanLng   *float64
			homeLat, homeLng *float64
		)
		err := rows.Scan(
			&tech.ID,
			&tech.UserID,
			&tech.VanID,
			&tech.Workload,
			&vanLat,
			&vanLng,
			&homeLat,
			&homeLng,
		)
		if err != nil {
			return nil, err
		}
		if vanLat != nil && vanLng != nil {
			tech.CurrentLocation = &domain.Coordinate{Lat: *vanLat, Lng: *vanLng}
		}
		if homeLat != nil && homeLng != nil {
			tech.HomeLocation = &domain.Coordinate{Lat: *homeLat, Lng: *homeLng}
		}
		technicians = append(technicians, &tech)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return technicians, nil
}

// GetRelevantJobs returns all jobs the planner cares about: queued
// plus locked.
func (s *PostgresJobStore) GetRelevantJobs(ctx context.Context) ([]*domain.Job, error) {
	return s.GetJobsByStatus(ctx, []domain.JobStatus{
		domain.StatusQueued,
		domain.StatusEnRoute,
		domain.StatusInProgress,
		domain.StatusFixedTime,
	})
}

// GetJobsByStatus returns jobs in any of the given statuses, joined
// with their service address.
func (s *PostgresJobStore) GetJobsByStatus(ctx context.Context, statuses []domain.JobStatus) ([]*domain.Job, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}

	query := `
		SELECT j.id, j.order_id, j.priority, j.job_duration, j.status,
		       j.service_category, j.service_id,
		       j.fixed_schedule_time, j.assigned_technician, j.estimated_sched,
		       a.lat, a.lng
		FROM jobs j
		JOIN orders o ON o.id = j.order_id
		LEFT JOIN addresses a ON a.id = o.address_id
		WHERE j.status = ANY($1)
		ORDER BY j.id
	`

	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("querying jobs by status: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		var (
			job      domain.Job
			status   string
			lat, lng *float64
		)
		err := rows.Scan(
			&job.ID,
			&job.OrderID,
			&job.Priority,
			&job.DurationMinutes,
			&status,
			&job.ServiceCategory,
			&job.ServiceID,
			&job.FixedScheduleTime,
			&job.AssignedTechnician,
			&job.EstimatedSched,
			&lat,
			&lng,
		)
		if err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		if lat != nil && lng != nil {
			job.Address = &domain.Coordinate{Lat: *lat, Lng: *lng}
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetEquipmentForVans batch-fetches the contents of the given vans.
func (s *PostgresJobStore) GetEquipmentForVans(ctx context.Context, vanIDs []int64) (map[int64][]domain.Equipment, error) {
	if len(vanIDs) == 0 {
		return map[int64][]domain.Equipment{}, nil
	}

	query := `
		SELECT ve.van_id, e.id, e.equipment_model
		FROM van_equipment ve
		JOIN equipment e ON e.id = ve.equipment_id
		WHERE ve.van_id = ANY($1)
		ORDER BY ve.van_id, e.id
	`

	rows, err := s.pool.Query(ctx, query, vanIDs)
	if err != nil {
		return nil, fmt.Errorf("querying van equipment: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.Equipment, len(vanIDs))
	for rows.Next() {
		var (
			vanID int64
			eq    domain.Equipment
		)
		if err := rows.Scan(&vanID, &eq.ID, &eq.Model); err != nil {
			return nil, err
		}
		result[vanID] = append(result[vanID], eq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRequiredEquipmentForJob resolves the models a job needs from its
// service category/id and the order vehicle's year/make/model. An
// undeterminable requirement is empty, not an error.
func (s *PostgresJobStore) GetRequiredEquipmentForJob(ctx context.Context, job *domain.Job) ([]string, error) {
	ymmID, err := s.GetYmmIDForOrder(ctx, job.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	query := `
		SELECT er.equipment_model
		FROM equipment_requirements er
		WHERE er.service_category = $1 AND er.service_id = $2 AND er.ymm_id = $3
		ORDER BY er.equipment_model
	`

	rows, err := s.pool.Query(ctx, query, job.ServiceCategory, job.ServiceID, ymmID)
	if err != nil {
		return nil, fmt.Errorf("querying equipment requirements: %w", err)
	}
	defer rows.Close()

	var models []string
	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetYmmIDForOrder resolves the year/make/model id for an order's
// vehicle.
func (s *PostgresJobStore) GetYmmIDForOrder(ctx context.Context, orderID int64) (int64, error) {
	query := `
		SELECT y.id
		FROM orders o
		JOIN customer_vehicles cv ON cv.id = o.vehicle_id
		JOIN ymm_reference y ON y.year = cv.year AND y.make = cv.make AND y.model = cv.model
		WHERE o.id = $1
	`

	var ymmID int64
	if err := s.pool.QueryRow(ctx, query, orderID).Scan(&ymmID); err != nil {
		return 0, err
	}
	return ymmID, nil
}

// UpdateJob writes one record of the final batch. Status is always
// written; technician and schedule are written as given, nil meaning
// NULL.
func (s *PostgresJobStore) UpdateJob(ctx context.Context, update domain.JobUpdate) error {
	query := `
		UPDATE jobs
		SET status = $2, assigned_technician = $3, estimated_sched = $4
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		update.JobID,
		string(update.Status),
		update.AssignedTechnician,
		update.EstimatedSched,
	)
	if err != nil {
		return fmt.Errorf("updating job %d: %w", update.JobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating job %d: %w", update.JobID, ErrJobNotFound)
	}
	return nil
}
