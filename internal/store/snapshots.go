package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// PutSnapshot persists a snapshot reference and publishes snapshot.created.
func (s *Store) PutSnapshot(ctx context.Context, snapshot *types.Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = NewID("snp")
	}
	if snapshot.Time == 0 {
		snapshot.Time = nowMillis()
	}

	if err := s.fs.put(ctx, []string{"snapshot", snapshot.SessionID, snapshot.ID}, snapshot); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	s.bus.Publish(bus.Event{
		Type: bus.SnapshotCreated,
		Data: bus.SnapshotCreatedData{Info: snapshot},
	})
	return nil
}

// GetSnapshot loads one snapshot reference.
func (s *Store) GetSnapshot(ctx context.Context, sessionID, snapshotID string) (*types.Snapshot, error) {
	var snapshot types.Snapshot
	if err := s.fs.get(ctx, []string{"snapshot", sessionID, snapshotID}, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListSnapshots returns a session's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]*types.Snapshot, error) {
	var snapshots []*types.Snapshot
	err := s.fs.scan(ctx, []string{"snapshot", sessionID}, func(key string, data json.RawMessage) error {
		var snapshot types.Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil
		}
		snapshots = append(snapshots, &snapshot)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Time > snapshots[j].Time
	})
	return snapshots, nil
}

// LatestSnapshot returns the most recent snapshot, or ErrNotFound.
func (s *Store) LatestSnapshot(ctx context.Context, sessionID string) (*types.Snapshot, error) {
	snapshots, err := s.ListSnapshots(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return snapshots[0], nil
}
