package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Enqueue stores the invocation as JSON and adds it to the queue's Sorted
// Set, scored by RunAt.
func (s *Store) Enqueue(ctx context.Context, inv *task.Invocation) error {
	invID := inv.ID.String()
	key := invocationKey(invID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vegetables/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return vegetables.ErrInvocationExists
	}

	raw, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("vegetables/redis: marshal invocation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.SAdd(ctx, invocationIDsKey, invID)
	pipe.SAdd(ctx, queuesKey, inv.Queue)
	pipe.ZAdd(ctx, queueKey(inv.Queue), goredis.Z{
		Score:  float64(inv.RunAt.UnixNano()),
		Member: invID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vegetables/redis: enqueue invocation: %w", err)
	}
	return nil
}

// Dequeue claims up to limit due invocations from the given queues. The
// claim is the ZRem: with many workers racing, only the one whose ZRem
// returns 1 owns the invocation, so nothing runs twice.
func (s *Store) Dequeue(ctx context.Context, queues []string, limit int) ([]*task.Invocation, error) {
	now := time.Now().UTC()
	var claimed []*task.Invocation

	for _, q := range queues {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		remaining := int64(0)
		if limit > 0 {
			remaining = int64(limit - len(claimed))
		}

		ids, err := s.client.ZRangeByScore(ctx, queueKey(q), &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", now.UnixNano()),
			Count: remaining,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("vegetables/redis: dequeue range: %w", err)
		}

		for _, invID := range ids {
			removed, err := s.client.ZRem(ctx, queueKey(q), invID).Result()
			if err != nil {
				return nil, fmt.Errorf("vegetables/redis: dequeue claim: %w", err)
			}
			if removed == 0 {
				continue // another worker claimed it first
			}

			inv, err := s.getByKey(ctx, invocationKey(invID))
			if err != nil {
				if errors.Is(err, vegetables.ErrInvocationNotFound) {
					continue
				}
				return nil, err
			}

			inv.State = task.StateRunning
			started := now
			inv.StartedAt = &started
			inv.UpdatedAt = now
			if err := s.persist(ctx, inv); err != nil {
				return nil, err
			}
			claimed = append(claimed, inv)
		}
	}
	return claimed, nil
}

// Get retrieves an invocation by ID.
func (s *Store) Get(ctx context.Context, taskID id.TaskID) (*task.Invocation, error) {
	return s.getByKey(ctx, invocationKey(taskID.String()))
}

// Update persists changes to an existing invocation. An invocation moved
// back to pending or retrying is re-added to its queue's Sorted Set.
func (s *Store) Update(ctx context.Context, inv *task.Invocation) error {
	key := invocationKey(inv.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("vegetables/redis: update check exists: %w", err)
	}
	if exists == 0 {
		return vegetables.ErrInvocationNotFound
	}

	inv.UpdatedAt = time.Now().UTC()
	if err := s.persist(ctx, inv); err != nil {
		return err
	}

	if inv.State == task.StatePending || inv.State == task.StateRetrying {
		err := s.client.ZAdd(ctx, queueKey(inv.Queue), goredis.Z{
			Score:  float64(inv.RunAt.UnixNano()),
			Member: inv.ID.String(),
		}).Err()
		if err != nil {
			return fmt.Errorf("vegetables/redis: requeue invocation: %w", err)
		}
	}
	return nil
}

// Delete removes an invocation by ID.
func (s *Store) Delete(ctx context.Context, taskID id.TaskID) error {
	invID := taskID.String()
	inv, err := s.getByKey(ctx, invocationKey(invID))
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, invocationKey(invID))
	pipe.SRem(ctx, invocationIDsKey, invID)
	pipe.ZRem(ctx, queueKey(inv.Queue), invID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vegetables/redis: delete invocation: %w", err)
	}
	return nil
}

// ListByState returns invocations matching the given state.
func (s *Store) ListByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Invocation, error) {
	ids, err := s.client.SMembers(ctx, invocationIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("vegetables/redis: list smembers: %w", err)
	}

	matches := make([]*task.Invocation, 0, len(ids))
	for _, invID := range ids {
		inv, err := s.getByKey(ctx, invocationKey(invID))
		if err != nil {
			continue // skip missing
		}
		if inv.State != state {
			continue
		}
		if opts.Queue != "" && inv.Queue != opts.Queue {
			continue
		}
		matches = append(matches, inv)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matches) {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// Count returns the number of invocations matching the given options.
func (s *Store) Count(ctx context.Context, opts task.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, invocationIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("vegetables/redis: count smembers: %w", err)
	}

	var n int64
	for _, invID := range ids {
		inv, err := s.getByKey(ctx, invocationKey(invID))
		if err != nil {
			continue
		}
		if opts.Queue != "" && inv.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && inv.State != opts.State {
			continue
		}
		n++
	}
	return n, nil
}

// Queues returns the names of all queues that have held an invocation.
func (s *Store) Queues(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, queuesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("vegetables/redis: queues smembers: %w", err)
	}
	return names, nil
}

func (s *Store) getByKey(ctx context.Context, key string) (*task.Invocation, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, vegetables.ErrInvocationNotFound
		}
		return nil, fmt.Errorf("vegetables/redis: get invocation: %w", err)
	}
	var inv task.Invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("vegetables/redis: unmarshal invocation: %w", err)
	}
	return &inv, nil
}

func (s *Store) persist(ctx context.Context, inv *task.Invocation) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("vegetables/redis: marshal invocation: %w", err)
	}
	if err := s.client.Set(ctx, invocationKey(inv.ID.String()), raw, 0).Err(); err != nil {
		return fmt.Errorf("vegetables/redis: persist invocation: %w", err)
	}
	return nil
}
