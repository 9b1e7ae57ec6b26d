package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/technosurge/leadflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// 图的虚拟起止节点
const (
	START = "__start__"
	END   = "__end__"
)

// ErrInvalidGraph Compile 校验失败
var ErrInvalidGraph = errors.New("invalid workflow graph")

// NodeFunc 节点函数：接收当前状态，返回本节点的状态更新
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// Recorder 接收图执行指标，metrics.Collector 实现了它
type Recorder interface {
	RecordWorkflowRun(graph, status string)
	RecordWorkflowNode(graph, node, status string, duration time.Duration)
}

// StateGraph 状态图构建器。节点按边的拓扑顺序执行，状态通过 Reducer 合并。
type StateGraph[S any] struct {
	name    string
	nodes   map[string]NodeFunc[S]
	order   []string
	edges   map[string][]string
	reducer Reducer[S]
	errs    []error
}

// NewStateGraph 创建状态图；默认 Reducer 为后写覆盖
func NewStateGraph[S any](name string) *StateGraph[S] {
	return &StateGraph[S]{
		name:    name,
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string][]string),
		reducer: LastValueReducer[S](),
	}
}

// WithReducer 设置节点输出与当前状态的合并方式
func (g *StateGraph[S]) WithReducer(r Reducer[S]) *StateGraph[S] {
	if r != nil {
		g.reducer = r
	}
	return g
}

// AddNode 添加节点；重名、保留名与空函数在 Compile 时报告
func (g *StateGraph[S]) AddNode(name string, fn NodeFunc[S]) *StateGraph[S] {
	switch {
	case name == "" || name == START || name == END:
		g.errs = append(g.errs, fmt.Errorf("node name %q is reserved or empty", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has no function", name))
	default:
		if _, dup := g.nodes[name]; dup {
			g.errs = append(g.errs, fmt.Errorf("duplicate node %q", name))
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge 添加有向边，from/to 可以是 START/END
func (g *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	for _, existing := range g.edges[from] {
		if existing == to {
			return g
		}
	}
	g.edges[from] = append(g.edges[from], to)
	return g
}

// Compile 校验图结构并返回可执行的图
func (g *StateGraph[S]) Compile(opts ...CompileOption) (*CompiledGraph[S], error) {
	errs := append([]error(nil), g.errs...)
	errs = append(errs, g.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	o := compileOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	nodes := make(map[string]NodeFunc[S], len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	return &CompiledGraph[S]{
		name:     g.name,
		nodes:    nodes,
		schedule: g.topoOrder(),
		reducer:  g.reducer,
		logger:   o.logger.With(zap.String("graph", g.name)),
		recorder: o.recorder,
	}, nil
}

func (g *StateGraph[S]) known(name string) bool {
	if name == START || name == END {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

func (g *StateGraph[S]) validate() []error {
	var errs []error
	if len(g.nodes) == 0 {
		errs = append(errs, errors.New("graph has no nodes"))
	}
	if len(g.edges[START]) == 0 {
		errs = append(errs, errors.New("no edge from START"))
	}
	if len(g.edges[END]) > 0 {
		errs = append(errs, errors.New("END cannot have outgoing edges"))
	}

	for _, from := range sortedKeys(g.edges) {
		if !g.known(from) {
			errs = append(errs, fmt.Errorf("edge references unknown source node %q", from))
		}
		for _, to := range g.edges[from] {
			if to == START {
				errs = append(errs, fmt.Errorf("edge %q -> START is not allowed", from))
			} else if !g.known(to) {
				errs = append(errs, fmt.Errorf("edge references unknown target node %q", to))
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if node := g.findCycle(); node != "" {
		return append(errs, fmt.Errorf("cycle detected in graph involving node %q", node))
	}

	fromStart := g.reachable(START, g.edges)
	var orphaned []string
	for _, n := range g.order {
		if !fromStart[n] {
			orphaned = append(orphaned, n)
		}
	}
	if len(orphaned) > 0 {
		errs = append(errs, fmt.Errorf("nodes not reachable from START: %s", strings.Join(orphaned, ", ")))
	}

	reverse := make(map[string][]string)
	for from, tos := range g.edges {
		for _, to := range tos {
			reverse[to] = append(reverse[to], from)
		}
	}
	toEnd := g.reachable(END, reverse)
	var deadEnds []string
	for _, n := range g.order {
		if !toEnd[n] {
			deadEnds = append(deadEnds, n)
		}
	}
	if len(deadEnds) > 0 {
		errs = append(errs, fmt.Errorf("nodes cannot reach END: %s", strings.Join(deadEnds, ", ")))
	}
	return errs
}

// findCycle DFS 找回边，返回环上的一个节点
func (g *StateGraph[S]) findCycle() string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(n string) string
	visit = func(n string) string {
		visited[n] = true
		onStack[n] = true
		for _, next := range g.edges[n] {
			if onStack[next] {
				return next
			}
			if !visited[next] {
				if found := visit(next); found != "" {
					return found
				}
			}
		}
		onStack[n] = false
		return ""
	}

	for _, n := range append([]string{START}, g.order...) {
		if !visited[n] {
			if found := visit(n); found != "" {
				return found
			}
		}
	}
	return ""
}

func (g *StateGraph[S]) reachable(from string, adj map[string][]string) map[string]bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[n] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// topoOrder Kahn 算法；同层按添加顺序，保证执行顺序确定
func (g *StateGraph[S]) topoOrder() []string {
	indeg := make(map[string]int, len(g.nodes))
	for _, n := range g.order {
		indeg[n] = 0
	}
	for from, tos := range g.edges {
		if from == START {
			continue
		}
		for _, to := range tos {
			if to != END {
				indeg[to]++
			}
		}
	}

	pos := make(map[string]int, len(g.order))
	for i, n := range g.order {
		pos[n] = i
	}

	var ready, out []string
	for _, n := range g.order {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, next := range g.edges[n] {
			if next == END {
				continue
			}
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// ▶️ 执行
// =============================================================================

// CompileOption 编译选项
type CompileOption func(*compileOptions)

type compileOptions struct {
	logger   *zap.Logger
	recorder Recorder
}

// WithLogger 设置执行日志
func WithLogger(logger *zap.Logger) CompileOption {
	return func(o *compileOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder 设置执行指标接收方
func WithRecorder(r Recorder) CompileOption {
	return func(o *compileOptions) { o.recorder = r }
}

// CompiledGraph 已校验的状态图，可并发调用 Invoke
type CompiledGraph[S any] struct {
	name     string
	nodes    map[string]NodeFunc[S]
	schedule []string
	reducer  Reducer[S]
	logger   *zap.Logger
	recorder Recorder
}

// Name 图名
func (c *CompiledGraph[S]) Name() string { return c.name }

// Nodes 返回节点执行顺序
func (c *CompiledGraph[S]) Nodes() []string {
	return append([]string(nil), c.schedule...)
}

// Invoke 按拓扑顺序执行全部节点。节点之间检查 ctx；节点错误带上节点名返回。
func (c *CompiledGraph[S]) Invoke(ctx context.Context, initial S) (S, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "workflow.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.graph", c.name))

	state := NewChannel("state", initial, WithReducer(c.reducer))
	for _, name := range c.schedule {
		if err := ctx.Err(); err != nil {
			c.finish(span, "cancelled", err)
			return state.Get(), err
		}

		out, err := c.runNode(ctx, name, state.Get())
		if err != nil {
			err = fmt.Errorf("node %q: %w", name, err)
			c.finish(span, "error", err)
			return state.Get(), err
		}
		state.Update(out)
	}

	span.SetAttributes(attribute.Int64("workflow.updates", int64(state.Version())))
	c.finish(span, "ok", nil)
	return state.Get(), nil
}

func (c *CompiledGraph[S]) runNode(ctx context.Context, name string, in S) (S, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "workflow.node")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.node", name))

	start := time.Now()
	out, err := c.nodes[name](ctx, in)
	d := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("node failed", zap.String("node", name), zap.Duration("duration", d), zap.Error(err))
	} else {
		c.logger.Debug("node done", zap.String("node", name), zap.Duration("duration", d))
	}
	if c.recorder != nil {
		c.recorder.RecordWorkflowNode(c.name, name, status, d)
	}
	return out, err
}

func (c *CompiledGraph[S]) finish(span trace.Span, status string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.recorder != nil {
		c.recorder.RecordWorkflowRun(c.name, status)
	}
}
