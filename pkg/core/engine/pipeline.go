package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/mapping"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
	"github.com/LENAX/dataflow-engine/pkg/core/workflow"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/sqlguard"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// run 一次执行的状态
type run struct {
	e *Executor
	// ctx 连接器操作使用
	ctx context.Context
	// storeCtx 状态与日志写入使用，调用方取消后仍可落库
	storeCtx  context.Context
	exec      *storage.Execution
	wf        *storage.Workflow
	cancelled *atomic.Bool

	rowsWritten int64
	rowsFailed  int64
}

// execute 按拓扑序驱动节点，节点输出是按节点ID索引的惰性块序列
func (r *run) execute() error {
	ok, err := r.e.store.StartExecution(r.storeCtx, r.exec.ID, r.e.now())
	if err != nil {
		return fmt.Errorf("更新执行状态失败: %w", err)
	}
	if !ok {
		return ErrCancelled
	}
	r.exec.Status = storage.ExecutionRunning
	logger.L().Infof("🚀 [执行器] 开始执行: ExecutionID=%s, Workflow=%s, Trigger=%s", r.exec.ID, r.wf.Name, r.exec.TriggerType)
	r.infof("", "Workflow started: %s", r.wf.Name)
	r.e.notifyStarted(r.exec, r.wf)

	def, err := workflow.Parse([]byte(r.wf.Definition))
	if err != nil {
		return err
	}
	order, err := def.ExecutionOrder()
	if err != nil {
		return err
	}
	r.infof("", "Execution order: %d nodes", len(order))

	outputs := make(map[string]connector.ChunkSeq, len(order))
	for _, node := range order {
		if err := r.checkCancelled(); err != nil {
			return err
		}
		if node.Disabled() {
			r.warnf(node.ID, "Node skipped (disabled): %s (%s)", node.Label(), shortID(node.ID))
			continue
		}
		r.infof(node.ID, "Node running: [%s] (%s)", node.Label(), node.Type)

		spec, err := node.Spec()
		if err != nil {
			return err
		}
		upstream := merge(def.Upstream(node.ID), outputs)

		switch s := spec.(type) {
		case workflow.SourceSpec:
			seq, err := r.source(node.ID, s)
			if err != nil {
				return err
			}
			outputs[node.ID] = seq
		case workflow.TransformSpec:
			mappings := s.ColumnMappings
			outputs[node.ID] = mapChunks(upstream, func(c types.Chunk) types.Chunk {
				return mapping.ApplyColumnMappings(c, mappings)
			})
		case workflow.FilterSpec:
			f, err := mapping.ParseFilter(s.Condition)
			if err != nil {
				r.warnf(node.ID, "Filter condition ignored: %v", err)
			}
			outputs[node.ID] = mapChunks(upstream, f.Apply)
		case workflow.DestinationSpec:
			written, failed, err := r.destination(node.ID, s, upstream)
			if err != nil {
				return err
			}
			r.rowsWritten += written
			r.rowsFailed += failed
		case workflow.SQLExecuteSpec:
			if err := r.sqlExecute(node.ID, s); err != nil {
				return err
			}
		default:
			r.warnf(node.ID, "Unknown node type skipped: %s", node.Type)
		}
	}
	return nil
}

// merge 按边列表顺序串联上游输出；没有输出的上游（禁用、目标、SQL节点）被忽略
func merge(ids []string, outputs map[string]connector.ChunkSeq) connector.ChunkSeq {
	var seqs []connector.ChunkSeq
	for _, id := range ids {
		if s, ok := outputs[id]; ok {
			seqs = append(seqs, s)
		}
	}
	return func(yield func(types.Chunk, error) bool) {
		for _, s := range seqs {
			for chunk, err := range s {
				if !yield(chunk, err) || err != nil {
					return
				}
			}
		}
	}
}

// mapChunks 惰性地对每个块应用fn
func mapChunks(in connector.ChunkSeq, fn func(types.Chunk) types.Chunk) connector.ChunkSeq {
	return func(yield func(types.Chunk, error) bool) {
		for chunk, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(fn(chunk), nil) {
				return
			}
		}
	}
}

// source 配置在此校验；连接在首次拉取时才打开，序列只能被消费一次
func (r *run) source(nodeID string, s workflow.SourceSpec) (connector.ChunkSeq, error) {
	if s.ConnectionID == "" {
		return nil, fmt.Errorf("source节点 %s: 缺少connection_id", nodeID)
	}
	query, ok := s.SourceQuery()
	if !ok {
		return nil, fmt.Errorf("source节点 %s: 无法生成查询，需指定table或query", nodeID)
	}
	if r.e.opts.SQLGuard && strings.TrimSpace(s.Query) != "" {
		if err := sqlguard.ValidateSQL(query); err != nil {
			return nil, fmt.Errorf("source节点 %s: %w", nodeID, err)
		}
	}
	chunkSize := s.ChunkSize.Or(r.e.opts.DefaultChunkSize)

	var consumed atomic.Bool
	return func(yield func(types.Chunk, error) bool) {
		if consumed.Swap(true) {
			return
		}
		conn, err := r.e.resolver.Resolve(r.ctx, s.ConnectionID)
		if err != nil {
			yield(nil, err)
			return
		}
		defer conn.Close()

		r.infof(nodeID, "Reading source: %s", abbreviate(query, 80))
		count := 0
		for chunk, err := range conn.ReadChunks(r.ctx, query, chunkSize) {
			if err != nil {
				yield(nil, err)
				return
			}
			count++
			r.infof(nodeID, "Chunk %d: %d rows read", count, len(chunk))
			if !yield(chunk, nil) {
				return
			}
		}
		r.infof(nodeID, "Read complete (%d chunks)", count)
	}, nil
}

// destination 逐块写入，首个非空块使用配置的写入模式，其后追加
// rollback策略下任一块失败即中止；overwrite的首块失败总是中止
func (r *run) destination(nodeID string, s workflow.DestinationSpec, upstream connector.ChunkSeq) (written, failed int64, err error) {
	if s.ConnectionID == "" {
		return 0, 0, fmt.Errorf("destination节点 %s: 缺少connection_id", nodeID)
	}
	if s.Table == "" {
		return 0, 0, fmt.Errorf("destination节点 %s: 缺少目标表名", nodeID)
	}
	mode, err := connector.ParseWriteMode(s.WriteMode)
	if err != nil {
		return 0, 0, fmt.Errorf("destination节点 %s: %w", nodeID, err)
	}
	if r.e.opts.SQLGuard {
		if !sqlguard.ValidateIdentifier(s.Table) || (s.Schema != "" && !sqlguard.ValidateIdentifier(s.Schema)) {
			return 0, 0, fmt.Errorf("destination节点 %s: 无效的表名 %s.%s", nodeID, s.Schema, s.Table)
		}
	}
	onError := s.ErrorPolicy()
	batch := s.BatchSize.Or(r.e.opts.DefaultBatchSize)

	conn, err := r.e.resolver.Resolve(r.ctx, s.ConnectionID)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	schema := s.Schema
	if schema == "" {
		schema = conn.DefaultSchema()
	}

	var colTypes map[string]string
	if cols, err := conn.ListColumns(r.ctx, schema, s.Table); err != nil {
		r.warnf(nodeID, "Column types unavailable (continuing): %v", err)
	} else {
		colTypes = make(map[string]string, len(cols))
		for _, c := range cols {
			colTypes[c.Name] = c.DataType
		}
		r.infof(nodeID, "Column types loaded: %d columns", len(colTypes))
	}
	r.infof(nodeID, "Writing destination: %s.%s (mode: %s, on_error: %s, batch: %d)", schema, s.Table, mode, onError, batch)

	opts := connector.WriteOptions{BatchSize: batch, ColumnTypes: colTypes}
	first := true
	index := 0
	var lastErr error
	for chunk, streamErr := range upstream {
		if streamErr != nil {
			if !errors.Is(streamErr, ErrCancelled) {
				r.errorf(nodeID, "Write stream error: %v", streamErr)
			}
			return written, failed, streamErr
		}
		if len(chunk) == 0 {
			continue
		}
		if err := r.checkCancelled(); err != nil {
			return written, failed, err
		}
		index++
		if len(s.ColumnMappings) > 0 {
			chunk = mapping.ApplyColumnMappings(chunk, s.ColumnMappings)
		}
		chunkMode := connector.WriteAppend
		if first {
			chunkMode = mode
		}

		n, err := conn.WriteChunk(r.ctx, schema, s.Table, chunk, chunkMode, opts)
		if err != nil {
			failed += int64(len(chunk))
			lastErr = err
			r.errorf(nodeID, "Chunk %d write error (%d rows): %v", index, len(chunk), err)
			if onError == workflow.OnErrorRollback || (mode == connector.WriteOverwrite && first) {
				return written, failed, err
			}
			first = false
			continue
		}
		written += int64(n)
		first = false
		r.infof(nodeID, "Chunk %d: %d rows written (total: %d)", index, n, written)
	}

	if written == 0 && lastErr != nil {
		return written, failed, lastErr
	}
	return written, failed, nil
}

func (r *run) sqlExecute(nodeID string, s workflow.SQLExecuteSpec) error {
	if s.ConnectionID == "" {
		return fmt.Errorf("sqlExecute节点 %s: 缺少connection_id", nodeID)
	}
	query := strings.TrimSpace(s.SQL)
	if query == "" {
		return fmt.Errorf("sqlExecute节点 %s: SQL为空", nodeID)
	}
	if r.e.opts.SQLGuard {
		if err := sqlguard.ValidateSQL(query); err != nil {
			return fmt.Errorf("sqlExecute节点 %s: %w", nodeID, err)
		}
	}

	conn, err := r.e.resolver.Resolve(r.ctx, s.ConnectionID)
	if err != nil {
		return err
	}
	defer conn.Close()

	r.infof(nodeID, "Executing SQL: %s", strings.ReplaceAll(abbreviate(query, 100), "\n", " "))
	affected, err := conn.ExecuteNonQuery(r.ctx, query)
	if err != nil {
		return err
	}
	r.infof(nodeID, "SQL completed. Affected rows: %d", affected)
	return nil
}

// checkCancelled 块边界处检查取消：本进程的标记或存储中的状态
func (r *run) checkCancelled() error {
	if r.cancelled.Load() {
		return ErrCancelled
	}
	exec, err := r.e.store.GetExecution(r.storeCtx, r.exec.ID)
	if err == nil && exec.Status == storage.ExecutionCancelled {
		r.cancelled.Store(true)
		return ErrCancelled
	}
	return nil
}

func (r *run) infof(nodeID, format string, args ...any) {
	r.log(storage.LevelInfo, nodeID, format, args...)
}

func (r *run) warnf(nodeID, format string, args ...any) {
	r.log(storage.LevelWarning, nodeID, format, args...)
}

func (r *run) errorf(nodeID, format string, args ...any) {
	r.log(storage.LevelError, nodeID, format, args...)
}

// log 写执行日志：落库、发布到总线，同时写进程日志
// 落库失败不影响执行
func (r *run) log(level storage.LogLevel, nodeID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case storage.LevelError:
		logger.L().Errorf("[exec:%s] %s", shortID(r.exec.ID), msg)
	case storage.LevelWarning:
		logger.L().Warnf("[exec:%s] %s", shortID(r.exec.ID), msg)
	default:
		logger.L().Debugf("[exec:%s] %s", shortID(r.exec.ID), msg)
	}

	entry := &storage.ExecutionLog{
		ExecutionID: r.exec.ID,
		NodeID:      nodeID,
		Level:       level,
		Message:     msg,
		CreatedAt:   r.e.now(),
	}
	if err := r.e.store.AppendLog(r.storeCtx, entry); err != nil {
		logger.L().Warnf("⚠️ [执行器] 写入执行日志失败: ExecutionID=%s, Error=%v", r.exec.ID, err)
		return
	}
	if r.e.bus != nil {
		if err := r.e.bus.PublishLog(entry); err != nil {
			logger.L().Warnf("⚠️ [执行器] 发布执行日志失败: ExecutionID=%s, Error=%v", r.exec.ID, err)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func abbreviate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
