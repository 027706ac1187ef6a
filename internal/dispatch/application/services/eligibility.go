package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
)

// EligibilityService decides which technicians can serve which items:
// a technician is eligible when their van carries every equipment model
// the item requires.
type EligibilityService struct {
	store  domain.JobStore
	logger *slog.Logger
}

// NewEligibilityService creates the filter.
func NewEligibilityService(store domain.JobStore, logger *slog.Logger) *EligibilityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EligibilityService{store: store, logger: logger}
}

// Filter annotates items with required equipment and eligible
// technicians. A bundle no single technician can cover is broken: its
// members are re-evaluated individually and emitted as single jobs. A
// single job with no eligible technician is still emitted; the solver
// drops it and it comes back unassigned.
func (s *EligibilityService) Filter(
	ctx context.Context,
	items []domain.SchedulableItem,
	technicians []*domain.Technician,
) ([]domain.PlannableItem, error) {
	vanModels, err := s.fetchVanModels(ctx, technicians)
	if err != nil {
		return nil, err
	}

	result := make([]domain.PlannableItem, 0, len(items))
	for _, item := range items {
		plannable, err := s.evaluate(ctx, item, technicians, vanModels)
		if err != nil {
			return nil, err
		}

		bundle, isBundle := item.(domain.Bundle)
		if isBundle && len(plannable.EligibleTechnicians) == 0 && len(bundle.Members) >= 2 {
			s.logger.Info("breaking bundle with no eligible technicians",
				"order_id", bundle.OrderID,
				"jobs", len(bundle.Members),
			)
			for _, job := range bundle.Members {
				single, err := s.evaluate(ctx, domain.SingleJob{Job: job}, technicians, vanModels)
				if err != nil {
					return nil, err
				}
				result = append(result, single)
			}
			continue
		}

		result = append(result, plannable)
	}
	return result, nil
}

func (s *EligibilityService) evaluate(
	ctx context.Context,
	item domain.SchedulableItem,
	technicians []*domain.Technician,
	vanModels map[int64]map[string]bool,
) (domain.PlannableItem, error) {
	required, err := s.requiredModels(ctx, item)
	if err != nil {
		return domain.PlannableItem{}, err
	}

	// Eligible-list order is the technician input order.
	eligible := make([]int64, 0, len(technicians))
	for _, tech := range technicians {
		if tech.VanID == nil {
			continue
		}
		if hasAllModels(vanModels[*tech.VanID], required) {
			eligible = append(eligible, tech.ID)
		}
	}

	return domain.PlannableItem{
		Item:                item,
		RequiredEquipment:   required,
		EligibleTechnicians: eligible,
	}, nil
}

// requiredModels unions the constituents' equipment requirements,
// deduplicated and in first-seen order.
func (s *EligibilityService) requiredModels(ctx context.Context, item domain.SchedulableItem) ([]string, error) {
	seen := make(map[string]bool)
	var required []string
	for _, job := range item.Jobs() {
		models, err := s.store.GetRequiredEquipmentForJob(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("fetching required equipment for job %d: %w", job.ID, err)
		}
		for _, model := range models {
			if !seen[model] {
				seen[model] = true
				required = append(required, model)
			}
		}
	}
	return required, nil
}

func (s *EligibilityService) fetchVanModels(ctx context.Context, technicians []*domain.Technician) (map[int64]map[string]bool, error) {
	seen := make(map[int64]bool)
	var vanIDs []int64
	for _, tech := range technicians {
		if tech.VanID != nil && !seen[*tech.VanID] {
			seen[*tech.VanID] = true
			vanIDs = append(vanIDs, *tech.VanID)
		}
	}
	if len(vanIDs) == 0 {
		return map[int64]map[string]bool{}, nil
	}

	equipment, err := s.store.GetEquipmentForVans(ctx, vanIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching van equipment: %w", err)
	}

	models := make(map[int64]map[string]bool, len(equipment))
	for vanID, items := range equipment {
		set := make(map[string]bool, len(items))
		for _, eq := range items {
			set[eq.Model] = true
		}
		models[vanID] = set
	}
	return models, nil
}

func hasAllModels(available map[string]bool, required []string) bool {
	for _, model := range required {
		if !available[model] {
			return false
		}
	}
	return true
}
