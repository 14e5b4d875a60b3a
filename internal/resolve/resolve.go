// Package resolve maps scraped player references onto stable player ids.
//
// Lookup order:
//
//  1. profile ref, when the page links one
//  2. normalized name (lowest id wins)
//  3. a new player
//
// A name match is only taken when it cannot be contradicted: a candidate
// carrying a different profile ref is a different person who shares the
// name, so a new player is created instead. A candidate without a profile
// ref adopts the new one. Two distinct players with the same name and no
// profile refs therefore merge; maintenance.DuplicateCandidates reports
// near misses for manual review.
package resolve

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

// Resolver resolves player references. It holds no state, so the same
// reference resolves to the same id on every run.
type Resolver struct {
	logger *slog.Logger
}

// New creates a Resolver.
func New(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve returns the player id for ref, creating the player when no match
// exists. created reports whether a row was inserted. Call it with the same
// transaction used for the detail write that needs the id.
func (r *Resolver) Resolve(ctx context.Context, players store.Players, ref provider.PlayerRef) (int64, bool, error) {
	name := provider.CleanText(ref.Name)
	key := provider.NormalizeName(name)
	if key == "" {
		return 0, false, &provider.ExtractionError{Field: "player_name", Value: ref.Name, Err: errors.New("empty player name")}
	}

	if ref.ProfileRef != "" {
		p, err := players.PlayerByProfileRef(ctx, ref.ProfileRef)
		switch {
		case err == nil:
			return p.ID, false, nil
		case !errors.Is(err, store.ErrNotFound):
			return 0, false, err
		}
	}

	p, err := players.PlayerByNameKey(ctx, key)
	switch {
	case err == nil:
		if p.ProfileRef == "" || ref.ProfileRef == "" {
			if err := players.AttachProfileRef(ctx, p.ID, ref.ProfileRef); err != nil {
				return 0, false, err
			}
			return p.ID, false, nil
		}
		// Same name, different profile: a namesake.
		r.logger.Debug("Name shared by distinct profiles",
			"name", name, "existing_player", p.ID, "existing_profile", p.ProfileRef, "profile", ref.ProfileRef)
	case !errors.Is(err, store.ErrNotFound):
		return 0, false, err
	}

	id, err := players.InsertPlayer(ctx, provider.Player{
		Name:       name,
		NameKey:    key,
		ProfileRef: ref.ProfileRef,
	})
	if err != nil {
		return 0, false, err
	}
	r.logger.Debug("Created player", "player_id", id, "name", name, "profile", ref.ProfileRef)
	return id, true, nil
}
