package queue

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis backs a queue with a shared redis client. Layout per queue name:
//
//	mq:<name>:wait     list of waiting ids (FIFO)
//	mq:<name>:delayed  zset id -> ready-at unix ms
//	mq:<name>:active   set of in-flight ids
//	mq:<name>:failed   set of terminally failed ids
//	mq:<name>:job:<id> hash with name, payload, status, attempts, ts, error
//
// Completed jobs are deleted outright; failed jobs are retained for
// inspection.
type Redis struct {
	rdb  *redis.Client
	name string
	opts Options
}

func NewRedis(rdb *redis.Client, name string, opts Options) *Redis {
	return &Redis{rdb: rdb, name: name, opts: opts.withDefaults()}
}

func (q *Redis) key(suffix string) string { return "mq:" + q.name + ":" + suffix }

func (q *Redis) Enqueue(ctx context.Context, name string, payload []byte) (string, error) {
	return q.EnqueueWithID(ctx, uuid.NewString(), name, payload)
}

func (q *Redis) EnqueueWithID(ctx context.Context, id, name string, payload []byte) (string, error) {
	created, err := q.rdb.HSetNX(ctx, q.key("job:"+id), "name", name).Result()
	if err != nil {
		return "", err
	}
	if !created {
		return id, nil
	}
	if err := q.rdb.HSet(ctx, q.key("job:"+id),
		"payload", payload,
		"status", string(StatusWaiting),
		"attempts", 0,
		"ts", time.Now().UnixMilli(),
	).Err(); err != nil {
		return "", err
	}
	if err := q.rdb.RPush(ctx, q.key("wait"), id).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (q *Redis) Job(ctx context.Context, id string) (Job, error) {
	fields, err := q.rdb.HGetAll(ctx, q.key("job:"+id)).Result()
	if err != nil {
		return Job{}, err
	}
	if len(fields) == 0 {
		return Job{}, ErrUnknownJob
	}
	return jobFromHash(id, fields), nil
}

func jobFromHash(id string, fields map[string]string) Job {
	attempts, _ := strconv.Atoi(fields["attempts"])
	ts, _ := strconv.ParseInt(fields["ts"], 10, 64)
	return Job{
		ID:        id,
		Name:      fields["name"],
		Payload:   []byte(fields["payload"]),
		Status:    Status(fields["status"]),
		Attempts:  attempts,
		Timestamp: time.UnixMilli(ts),
		Error:     fields["error"],
	}
}

func (q *Redis) Jobs(ctx context.Context, states []Status, start, end int) ([]Job, error) {
	seen := make(map[string]bool)
	var ids []string
	add := func(more []string) {
		for _, id := range more {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	for _, s := range states {
		switch s {
		case StatusWaiting:
			v, err := q.rdb.LRange(ctx, q.key("wait"), 0, -1).Result()
			if err != nil {
				return nil, err
			}
			add(v)
		case StatusDelayed:
			v, err := q.rdb.ZRange(ctx, q.key("delayed"), 0, -1).Result()
			if err != nil {
				return nil, err
			}
			add(v)
		case StatusActive, StatusFailed:
			v, err := q.rdb.SMembers(ctx, q.key(string(s))).Result()
			if err != nil {
				return nil, err
			}
			add(v)
		}
	}

	var out []Job
	for _, id := range ids {
		j, err := q.Job(ctx, id)
		if errors.Is(err, ErrUnknownJob) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Timestamp.After(out[k].Timestamp) })
	if start >= len(out) {
		return nil, nil
	}
	if end >= len(out) {
		end = len(out) - 1
	}
	return out[start : end+1], nil
}

func (q *Redis) Remove(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key("wait"), 0, id)
	pipe.ZRem(ctx, q.key("delayed"), id)
	pipe.SRem(ctx, q.key("active"), id)
	pipe.SRem(ctx, q.key("failed"), id)
	pipe.Del(ctx, q.key("job:"+id))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Redis) Counts(ctx context.Context) (map[Status]int, error) {
	pipe := q.rdb.Pipeline()
	wait := pipe.LLen(ctx, q.key("wait"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.SCard(ctx, q.key("active"))
	failed := pipe.SCard(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return map[Status]int{
		StatusWaiting:   int(wait.Val()),
		StatusDelayed:   int(delayed.Val()),
		StatusActive:    int(active.Val()),
		StatusFailed:    int(failed.Val()),
		StatusCompleted: 0, // completed jobs are forgotten
	}, nil
}

func (q *Redis) Consume(ctx context.Context, h Handler, opts ConsumeOptions) error {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	work := make(chan Job)
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-work:
					q.finish(ctx, j, h(ctx, j), opts)
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
			time.Sleep(time.Second)
			continue
		}

		id, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}
			continue
		}
		if id == "" {
			continue // poll timeout, re-check delayed set
		}

		j, err := q.claim(ctx, id)
		if err != nil {
			continue // job was removed while waiting
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case work <- j:
		}
	}
}

// promoteDue moves delayed jobs whose backoff elapsed back to the wait list.
func (q *Redis) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another consumer promoted it
		}
		pipe := q.rdb.TxPipeline()
		pipe.HSet(ctx, q.key("job:"+id), "status", string(StatusWaiting))
		pipe.RPush(ctx, q.key("wait"), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (q *Redis) pop(ctx context.Context) (string, error) {
	v, err := q.rdb.BLPop(ctx, time.Second, q.key("wait")).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v[1], nil
}

func (q *Redis) claim(ctx context.Context, id string) (Job, error) {
	pipe := q.rdb.TxPipeline()
	pipe.SAdd(ctx, q.key("active"), id)
	pipe.HSet(ctx, q.key("job:"+id), "status", string(StatusActive))
	pipe.HIncrBy(ctx, q.key("job:"+id), "attempts", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return Job{}, err
	}
	return q.Job(ctx, id)
}

func (q *Redis) finish(ctx context.Context, j Job, herr error, opts ConsumeOptions) {
	if herr == nil {
		pipe := q.rdb.TxPipeline()
		pipe.SRem(ctx, q.key("active"), j.ID)
		pipe.Del(ctx, q.key("job:"+j.ID))
		_, _ = pipe.Exec(ctx)
		return
	}
	if j.Attempts < q.opts.MaxAttempts {
		readyAt := time.Now().Add(q.opts.backoff(j.Attempts)).UnixMilli()
		pipe := q.rdb.TxPipeline()
		pipe.SRem(ctx, q.key("active"), j.ID)
		pipe.HSet(ctx, q.key("job:"+j.ID), "status", string(StatusDelayed))
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt), Member: j.ID})
		_, _ = pipe.Exec(ctx)
		return
	}
	pipe := q.rdb.TxPipeline()
	pipe.SRem(ctx, q.key("active"), j.ID)
	pipe.SAdd(ctx, q.key("failed"), j.ID)
	pipe.HSet(ctx, q.key("job:"+j.ID), "status", string(StatusFailed), "error", herr.Error())
	_, _ = pipe.Exec(ctx)
	if opts.OnFailed != nil {
		j.Status = StatusFailed
		j.Error = herr.Error()
		opts.OnFailed(j, herr)
	}
}
