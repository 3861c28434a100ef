package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"s3batch/pkg/state"
	"s3batch/pkg/transport"
)

// PlanningError 表示计划阶段的致命错误，批次不会开始执行
type PlanningError struct {
	Source string
	Err    error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("计划失败 (%s): %v", e.Source, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// Plan 是计划阶段的产物：批次本身加上待传输的文件数与字节数
type Plan struct {
	Batch      *state.TransferBatch
	TotalFiles int
	TotalBytes int64
}

// BuildPlan 根据配置生成批次计划。
// 给定相同的文件系统/远端列举状态与过滤参数，产出是确定的。
func BuildPlan(ctx context.Context, cfg *EngineConfig, tp transport.Transport) (*Plan, error) {
	if err := ValidatePatterns(cfg.Includes, cfg.Excludes); err != nil {
		return nil, err
	}

	var items []*state.TransferItem
	var err error
	switch {
	case cfg.Direction == state.DirectionUpload && len(cfg.Sources) > 0:
		items, err = planExplicitUploads(cfg)
	case cfg.Direction == state.DirectionUpload:
		items, err = planWalkUploads(cfg)
	case len(cfg.Sources) > 0:
		items, err = planExplicitDownloads(ctx, cfg, tp)
	default:
		items, err = planListedDownloads(ctx, cfg, tp)
	}
	if err != nil {
		return nil, err
	}

	markDuplicates(items)
	pending := lo.Filter(items, func(item *state.TransferItem, _ int) bool {
		return item.Status == state.StatusPending
	})
	return &Plan{
		Batch:      state.NewBatch(cfg.Direction, cfg.Destination, batchSources(cfg), items),
		TotalFiles: len(pending),
		TotalBytes: lo.SumBy(pending, func(item *state.TransferItem) int64 { return item.SizeBytes }),
	}, nil
}

// batchSources 返回参与批次标识的用户级来源：显式列表用列表本身，
// 目录扫描用根目录，前缀列举用前缀
func batchSources(cfg *EngineConfig) []string {
	switch {
	case len(cfg.Sources) > 0:
		return cfg.Sources
	case cfg.Direction == state.DirectionUpload:
		return []string{cfg.SourceDir}
	default:
		return []string{cfg.RemotePrefix}
	}
}

// planExplicitUploads 处理显式指定的本地文件列表，逐个严格预校验：
// 路径不存在或是目录都会让整个计划失败
func planExplicitUploads(cfg *EngineConfig) ([]*state.TransferItem, error) {
	items := make([]*state.TransferItem, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		resolved, err := filepath.EvalSymlinks(src)
		if err != nil {
			return nil, &PlanningError{Source: src, Err: err}
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, &PlanningError{Source: src, Err: err}
		}
		if info.IsDir() {
			return nil, &PlanningError{Source: src, Err: errors.New("是目录，此处要求普通文件")}
		}
		items = append(items, &state.TransferItem{
			Source:    resolved,
			Target:    joinPrefix(cfg.Destination, filepath.Base(resolved)),
			SizeBytes: info.Size(),
			Status:    state.StatusPending,
		})
	}
	return items, nil
}

// planWalkUploads 递归扫描目录，相对路径保留为远端 key 后缀。
// 扫描中发现的异常条目只是被排除，不影响整个计划。
func planWalkUploads(cfg *EngineConfig) ([]*state.TransferItem, error) {
	root, err := filepath.EvalSymlinks(cfg.SourceDir)
	if err != nil {
		return nil, &PlanningError{Source: cfg.SourceDir, Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &PlanningError{Source: cfg.SourceDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &PlanningError{Source: cfg.SourceDir, Err: errors.New("不是目录")}
	}

	var items []*state.TransferItem
	walkErr := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if !FilterPath(rel, cfg.Includes, cfg.Excludes) {
			return nil
		}
		st, err := os.Stat(p)
		if err != nil || !st.Mode().IsRegular() {
			return nil
		}
		items = append(items, &state.TransferItem{
			Source:    p,
			Target:    joinPrefix(cfg.Destination, filepath.ToSlash(rel)),
			SizeBytes: st.Size(),
			Status:    state.StatusPending,
		})
		return nil
	})
	if walkErr != nil {
		return nil, &PlanningError{Source: cfg.SourceDir, Err: walkErr}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Target < items[j].Target })
	return items, nil
}

// planExplicitDownloads 处理显式指定的远端 key 列表，
// 通过传输器 stat 获取大小并严格预校验存在性
func planExplicitDownloads(ctx context.Context, cfg *EngineConfig, tp transport.Transport) ([]*state.TransferItem, error) {
	items := make([]*state.TransferItem, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		_, key, err := transport.ParseS3URI(src)
		if err != nil {
			return nil, &PlanningError{Source: src, Err: err}
		}
		size, err := tp.Stat(ctx, src)
		if err != nil {
			return nil, &PlanningError{Source: src, Err: err}
		}
		items = append(items, &state.TransferItem{
			Source:    src,
			Target:    filepath.Join(cfg.Destination, path.Base(key)),
			SizeBytes: size,
			Status:    state.StatusPending,
		})
	}
	return items, nil
}

// planListedDownloads 列举远端前缀下全部对象并套用过滤器，
// 本地目标保留 key 相对前缀的层级结构
func planListedDownloads(ctx context.Context, cfg *EngineConfig, tp transport.Transport) ([]*state.TransferItem, error) {
	objects, err := tp.List(ctx, cfg.RemotePrefix)
	if err != nil {
		return nil, &PlanningError{Source: cfg.RemotePrefix, Err: err}
	}
	bucket, prefixKey, err := transport.ParseS3URI(cfg.RemotePrefix)
	if err != nil {
		return nil, &PlanningError{Source: cfg.RemotePrefix, Err: err}
	}
	var items []*state.TransferItem
	for _, obj := range objects {
		rel := relativeKey(obj.Key, prefixKey)
		if !FilterPath(rel, cfg.Includes, cfg.Excludes) {
			continue
		}
		items = append(items, &state.TransferItem{
			Source:    "s3://" + bucket + "/" + obj.Key,
			Target:    filepath.Join(cfg.Destination, filepath.FromSlash(rel)),
			SizeBytes: obj.Size,
			Status:    state.StatusPending,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Target < items[j].Target })
	return items, nil
}

// markDuplicates 按 target 分组做去重：首个出现的保持 Pending，
// 其余同 target 条目标记为 Skipped 并记录重复来源
func markDuplicates(items []*state.TransferItem) {
	first := make(map[string]int, len(items))
	for i, item := range items {
		if idx, ok := first[item.Target]; ok {
			item.Status = state.StatusSkipped
			item.Reason = fmt.Sprintf("duplicate of item %d", idx+1)
			continue
		}
		first[item.Target] = i
	}
}

func joinPrefix(prefix, rel string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + rel
}

func relativeKey(key, prefixKey string) string {
	prefixKey = strings.TrimSuffix(prefixKey, "/")
	if prefixKey == "" {
		return key
	}
	return strings.TrimPrefix(key, prefixKey+"/")
}
