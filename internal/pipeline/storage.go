package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jackzampolin/larder/internal/recipe"
)

// ErrNotConverted is returned when saving a result that has no converted recipe.
var ErrNotConverted = errors.New("only successful conversions can be saved")

// Save stores a successful result under a new id and returns the id.
func (p *Pipeline) Save(ctx context.Context, res recipe.ConversionResult) (string, error) {
	if !res.Success || res.Converted == nil {
		return "", ErrNotConverted
	}
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipe: %w", err)
	}
	id := uuid.NewString()
	if err := p.store.Save(ctx, id, body); err != nil {
		return "", fmt.Errorf("failed to save recipe: %w", err)
	}
	p.logger.Debug("saved recipe", "id", id, "title", res.Converted.Title, "type", res.RecipeType)
	return id, nil
}

// Load returns a saved result. Missing ids return store.ErrNotFound.
func (p *Pipeline) Load(ctx context.Context, id string) (recipe.ConversionResult, error) {
	body, err := p.store.Get(ctx, id)
	if err != nil {
		return recipe.ConversionResult{}, err
	}
	var res recipe.ConversionResult
	if err := json.Unmarshal(body, &res); err != nil {
		return recipe.ConversionResult{}, fmt.Errorf("failed to decode recipe %s: %w", id, err)
	}
	return res, nil
}

// Delete removes a saved result.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	return p.store.Delete(ctx, id)
}

// List returns the ids of saved results.
func (p *Pipeline) List(ctx context.Context) ([]string, error) {
	return p.store.List(ctx)
}
