package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/streaming"
)

// SeedController is the part of the engine a restore needs.
type SeedController interface {
	ActiveSeed() string
	SetActiveSeed(seed string) streaming.Info
}

// Bridge captures and restores sessions against a seed controller.
type Bridge struct {
	store  Store
	seeds  SeedController
	now    func() time.Time
	logger *slog.Logger
}

// NewBridge wires a store to an engine.
func NewBridge(store Store, seeds SeedController, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{store: store, seeds: seeds, now: time.Now, logger: logger}
}

// Capture stores pose and selection under name together with the engine's
// active seed and the current time.
func (b *Bridge) Capture(ctx context.Context, name string, pose streaming.CameraPose, selected *procedural.Star) (*Record, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}
	if !pose.Position.IsFinite() || !finite(pose.Pitch) || !finite(pose.Yaw) {
		return nil, ErrInvalidPose
	}

	rec := Record{
		Name: safe,
		State: State{
			Pose:     pose,
			Selected: cloneStar(selected),
			Seed:     b.seeds.ActiveSeed(),
		},
		Timestamp: b.now().Unix(),
	}
	saved, err := b.store.Save(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to save session %q: %w", safe, err)
	}
	b.logger.Info("session saved", "name", saved.Name, "id", saved.ID, "seed", saved.State.Seed)
	return saved, nil
}

// Restore looks query up and, when found, switches the engine to the stored
// seed before returning the record. The caller replaces its pose and
// selection with the returned state. A miss returns nil, nil and leaves the
// engine untouched; records without a seed count as misses.
func (b *Bridge) Restore(ctx context.Context, query string) (*Record, error) {
	rec, err := b.store.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session %q: %w", query, err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.State.Seed == "" {
		b.logger.Warn("session record has no seed, ignoring", "name", rec.Name, "id", rec.ID)
		return nil, nil
	}

	if rec.State.Seed != b.seeds.ActiveSeed() {
		info := b.seeds.SetActiveSeed(rec.State.Seed)
		b.logger.Info("session restore switched seed", "name", rec.Name, "seed", info.Seed, "epoch", info.Epoch)
	}
	rec.State.Selected = cloneStar(rec.State.Selected)
	return rec, nil
}

// List returns all sessions, newest first.
func (b *Bridge) List(ctx context.Context) ([]Record, error) {
	records, err := b.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return records, nil
}

// Delete removes every session named name, compared after normalizing.
func (b *Bridge) Delete(ctx context.Context, name string) (bool, error) {
	name = NormalizeQuery(name)
	if name == "" {
		return false, nil
	}
	n, err := b.store.Delete(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete session %q: %w", name, err)
	}
	return n > 0, nil
}

// Suggest returns the stored name closest to query by edit distance, or ""
// when nothing is reasonably close.
func (b *Bridge) Suggest(ctx context.Context, query string) (string, error) {
	records, err := b.List(ctx)
	if err != nil {
		return "", err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", nil
	}

	limit := max(3, len(q)/2)
	best, bestDist := "", limit+1
	for _, r := range records {
		d := levenshtein.ComputeDistance(q, strings.ToLower(r.Name))
		if d < bestDist {
			best, bestDist = r.Name, d
		}
	}
	return best, nil
}

func cloneStar(s *procedural.Star) *procedural.Star {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
