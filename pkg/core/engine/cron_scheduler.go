package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LENAX/dataflow-engine/pkg/core/cronexpr"
	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// JobKind 定时任务类型
type JobKind string

const (
	JobSchedule      JobKind = "schedule"
	JobOrchestration JobKind = "orchestration"
)

// OrchestrationJobID 编排任务ID
func OrchestrationJobID(orchestrationID string) string {
	return "orch_" + orchestrationID
}

// JobInfo 已注册的定时任务（对外导出）
type JobInfo struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	TargetID   string     `json:"target_id"`
	Name       string     `json:"name"`
	Expression string     `json:"cron_expression"`
	Spec       string     `json:"spec"` // 交给定时器的表达式
	NextRun    *time.Time `json:"next_run_time"`
}

type cronJob struct {
	entryID  cron.EntryID
	info     JobInfo
	schedule cron.Schedule
}

// CronScheduler 定时调度器（对外导出）
// 任务表由一把锁保护；触发在robfig/cron的任务协程中执行，同一任务上次未结束时跳过本次
type CronScheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	parser  cron.Parser
	jobs    map[string]*cronJob
	mu      sync.Mutex
	started bool
}

// cronLogger 把robfig/cron的日志接到zap
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("[Cron调度器] "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("[Cron调度器] "+msg, append(keysAndValues, "error", err)...)
}

// NewCronScheduler 创建定时调度器
// loc为nil时使用本地时区
func NewCronScheduler(loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{l: logger.L()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:    loc,
		parser: parser,
		jobs:   make(map[string]*cronJob),
	}
}

// Register 注册或替换任务
func (cs *CronScheduler) Register(kind JobKind, id, targetID, name, expression string, fn func()) error {
	spec, err := cronexpr.ToTimerSpec(expression, cronexpr.TimerConvention)
	if err != nil {
		return err
	}
	schedule, err := cs.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: 任务 %s: %v", cronexpr.ErrInvalidExpression, id, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if old, ok := cs.jobs[id]; ok {
		cs.cron.Remove(old.entryID)
		delete(cs.jobs, id)
	}
	entryID := cs.cron.Schedule(schedule, cron.FuncJob(fn))
	cs.jobs[id] = &cronJob{
		entryID:  entryID,
		schedule: schedule,
		info: JobInfo{
			ID:         id,
			Kind:       kind,
			TargetID:   targetID,
			Name:       name,
			Expression: expression,
			Spec:       spec,
		},
	}
	logger.L().Infof("✅ [Cron调度器] 已注册任务: ID=%s, Kind=%s, Spec=%s", id, kind, spec)
	return nil
}

// Deregister 移除任务，不存在时返回false
func (cs *CronScheduler) Deregister(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	job, ok := cs.jobs[id]
	if !ok {
		return false
	}
	cs.cron.Remove(job.entryID)
	delete(cs.jobs, id)
	logger.L().Infof("✅ [Cron调度器] 已移除任务: ID=%s", id)
	return true
}

// NextRun 任务的下次触发时间，任务不存在时返回nil
func (cs *CronScheduler) NextRun(id string) *time.Time {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	job, ok := cs.jobs[id]
	if !ok {
		return nil
	}
	return cs.nextRunLocked(job)
}

func (cs *CronScheduler) nextRunLocked(job *cronJob) *time.Time {
	next := job.schedule.Next(time.Now().In(cs.loc))
	if next.IsZero() {
		return nil
	}
	return &next
}

// ListJobs 列出已注册任务（按ID排序）
func (cs *CronScheduler) ListJobs() []JobInfo {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make([]JobInfo, 0, len(cs.jobs))
	for _, job := range cs.jobs {
		info := job.info
		info.NextRun = cs.nextRunLocked(job)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Has 任务是否已注册
func (cs *CronScheduler) Has(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.jobs[id]
	return ok
}

// Location 调度时区
func (cs *CronScheduler) Location() *time.Location {
	return cs.loc
}

// Start 启动定时调度器
func (cs *CronScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.started {
		return
	}
	cs.cron.Start()
	cs.started = true
	logger.L().Infof("✅ [Cron调度器] 已启动: Location=%s, Jobs=%d", cs.loc, len(cs.jobs))
}

// Stop 停止定时调度器并等待正在执行的任务结束
func (cs *CronScheduler) Stop() {
	cs.mu.Lock()
	if !cs.started {
		cs.mu.Unlock()
		return
	}
	cs.started = false
	cs.mu.Unlock()

	<-cs.cron.Stop().Done()
	logger.L().Info("✅ [Cron调度器] 已停止")
}
