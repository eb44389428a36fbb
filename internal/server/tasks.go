package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/fleetdeck/internal/batch"
	"github.com/user/fleetdeck/internal/store"
)

type taskStatus string

const (
	taskQueued    taskStatus = "queued"
	taskRunning   taskStatus = "running"
	taskCompleted taskStatus = "completed"
)

// Batch operations the API accepts.
const (
	batchOpRefreshTokens = "refresh-tokens"
	batchOpResetCredits  = "reset-credits"
)

// batchTask tracks one async batch from submission to completion. Results
// arrive all at once when the underlying run finishes.
type batchTask struct {
	ID         string             `json:"id"`
	Status     taskStatus         `json:"status"`
	Op         string             `json:"op"`
	Total      int                `json:"total"`
	Succeeded  int                `json:"succeeded"`
	Results    []batch.ItemResult `json:"results,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// taskRegistry owns the in-memory batch tasks. Tasks do not survive a
// restart; the audit log keeps the durable trace.
type taskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*batchTask
	srv   *Server
}

func newTaskRegistry(srv *Server) *taskRegistry {
	return &taskRegistry{
		tasks: make(map[string]*batchTask),
		srv:   srv,
	}
}

func (tr *taskRegistry) start(op string, ids []string) (*batchTask, error) {
	switch op {
	case batchOpRefreshTokens, batchOpResetCredits:
	default:
		return nil, fmt.Errorf("unknown batch op %q", op)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ids is required")
	}

	now := time.Now().UTC()
	task := &batchTask{
		ID:        store.NewBatchID(),
		Status:    taskQueued,
		Op:        op,
		Total:     len(ids),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tr.mu.Lock()
	tr.tasks[task.ID] = task
	tr.mu.Unlock()

	go tr.run(task.ID, op, ids)
	return copyTask(task), nil
}

func (tr *taskRegistry) get(id string) (*batchTask, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	task, ok := tr.tasks[id]
	if !ok {
		return nil, false
	}
	return copyTask(task), true
}

// list returns all tasks, newest first. Task ids sort chronologically.
func (tr *taskRegistry) list() []*batchTask {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]*batchTask, 0, len(tr.tasks))
	for _, task := range tr.tasks {
		out = append(out, copyTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// run executes the batch on a background context so a dropped HTTP
// connection never cancels work already accepted.
func (tr *taskRegistry) run(taskID, op string, ids []string) {
	tr.update(taskID, func(t *batchTask) { t.Status = taskRunning })

	settings, err := tr.srv.store.GetSettings()
	if err != nil {
		settings = store.DefaultSettings()
	}
	cfg := batch.Config{
		Limit:   settings.BatchLimit(len(ids)),
		Stagger: time.Duration(settings.BatchStaggerMs) * time.Millisecond,
	}

	var fn batch.Op
	switch op {
	case batchOpRefreshTokens:
		fn = func(ctx context.Context, id string) (any, error) {
			_, err := tr.srv.tokens.EnsureValid(ctx, id, true)
			return nil, err
		}
	case batchOpResetCredits:
		fn = func(ctx context.Context, id string) (any, error) {
			return tr.srv.ops.ResetCredits(ctx, id, 0)
		}
	}

	sum := batch.Run(context.Background(), cfg, ids, fn)

	now := time.Now().UTC()
	tr.update(taskID, func(t *batchTask) {
		t.Status = taskCompleted
		t.Succeeded = sum.SuccessCount
		t.Results = sum.Results
		t.FinishedAt = &now
	})

	auditOp := "batch_" + strings.ReplaceAll(op, "-", "_")
	detail := fmt.Sprintf("task=%s %d/%d succeeded", taskID, sum.SuccessCount, sum.TotalCount)
	tr.srv.recordOp("", auditOp, 0, nil, detail)
}

func (tr *taskRegistry) update(id string, fn func(t *batchTask)) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if t, ok := tr.tasks[id]; ok {
		fn(t)
		t.UpdatedAt = time.Now().UTC()
	}
}

func copyTask(t *batchTask) *batchTask {
	cp := *t
	if t.FinishedAt != nil {
		ft := *t.FinishedAt
		cp.FinishedAt = &ft
	}
	cp.Results = append([]batch.ItemResult(nil), t.Results...)
	return &cp
}
