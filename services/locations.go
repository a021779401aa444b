package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"meu_perito_go/models"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const dynamicLocationsKey = "dynamic"

// LocationRegistry merges the fixed federal list with administrator-managed
// locations persisted in the KV store.
type LocationRegistry struct {
	kv  KVStore
	mu  sync.Mutex
	now func() time.Time
}

// NewLocationRegistry creates a registry over kv
func NewLocationRegistry(kv KVStore) *LocationRegistry {
	return &LocationRegistry{kv: kv, now: time.Now}
}

func (r *LocationRegistry) dynamic(ctx context.Context) ([]models.Location, error) {
	var locs []models.Location
	if _, err := getJSON(ctx, r.kv, BucketLocations, dynamicLocationsKey, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

// List returns fixed and dynamic locations sorted by name in pt-BR order
func (r *LocationRegistry) List(ctx context.Context) ([]models.Location, error) {
	dyn, err := r.dynamic(ctx)
	if err != nil {
		return nil, err
	}

	all := make([]models.Location, 0, len(models.FederalLocations)+len(dyn))
	all = append(all, models.FederalLocations...)
	all = append(all, dyn...)

	c := collate.New(language.BrazilianPortuguese, collate.IgnoreCase, collate.Numeric)
	sort.SliceStable(all, func(i, j int) bool {
		return c.CompareString(all[i].Name, all[j].Name) < 0
	})
	return all, nil
}

// Get resolves a location id; unknown ids return ErrUnknownLocation
func (r *LocationRegistry) Get(ctx context.Context, id string) (*models.Location, error) {
	for _, loc := range models.FederalLocations {
		if loc.ID == id {
			l := loc
			return &l, nil
		}
	}

	dyn, err := r.dynamic(ctx)
	if err != nil {
		return nil, err
	}
	for _, loc := range dyn {
		if loc.ID == id {
			l := loc
			return &l, nil
		}
	}
	return nil, newDocketError(ErrUnknownLocation, "location_id", "location %q is not registered", id)
}

// Add registers a dynamic location. Names are compared ignoring case and accents.
func (r *LocationRegistry) Add(ctx context.Context, name, actor string) (*models.Location, error) {
	name = collapseWhitespace(name)
	if name == "" {
		return nil, newDocketError(ErrMissingRequiredField, "name", "location name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	folded := foldText(name)
	for _, loc := range existing {
		if foldText(loc.Name) == folded {
			return nil, newDocketError(ErrDuplicateLocation, "name", "location %q already exists", loc.Name)
		}
	}

	dyn, err := r.dynamic(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	loc := models.Location{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: actor,
		CreatedAt: &now,
	}
	dyn = append(dyn, loc)
	if err := putJSON(ctx, r.kv, BucketLocations, dynamicLocationsKey, dyn); err != nil {
		return nil, err
	}
	return &loc, nil
}

// Remove deletes a dynamic location. Fixed locations cannot be removed.
func (r *LocationRegistry) Remove(ctx context.Context, id string) error {
	for _, loc := range models.FederalLocations {
		if loc.ID == id {
			return newDocketError(ErrFixedLocation, "location_id", "%s is part of the fixed federal list", loc.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dyn, err := r.dynamic(ctx)
	if err != nil {
		return err
	}
	kept := dyn[:0]
	found := false
	for _, loc := range dyn {
		if loc.ID == id {
			found = true
			continue
		}
		kept = append(kept, loc)
	}
	if !found {
		return newDocketError(ErrNotFound, "location_id", "location %q not found", id)
	}
	return putJSON(ctx, r.kv, BucketLocations, dynamicLocationsKey, kept)
}

// Name returns the display name for id, or id itself when unknown
func (r *LocationRegistry) Name(ctx context.Context, id string) string {
	loc, err := r.Get(ctx, id)
	if err != nil {
		return id
	}
	return strings.TrimSpace(loc.Name)
}
