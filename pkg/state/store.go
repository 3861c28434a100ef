package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const stateDirName = ".s3batch"

// ErrCorrupted 表示状态文件存在但无法解析，调用方应按无历史状态处理
var ErrCorrupted = errors.New("state file corrupted")

// Store 负责批次状态的持久化，按 batch ID 存取
type Store struct {
	dir string
}

// NewStore 创建 Store，dir 为状态文件目录
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir 返回默认状态目录 ~/.s3batch/batches
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("定位用户目录失败: %w", err)
	}
	return filepath.Join(home, stateDirName, "batches"), nil
}

// Load 按 ID 读取批次，不存在时返回 (nil, nil)，文件损坏时返回 ErrCorrupted
func (s *Store) Load(id string) (*TransferBatch, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	}
	var batch TransferBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if batch.ID != id {
		return nil, fmt.Errorf("%w: id 不匹配", ErrCorrupted)
	}
	return &batch, nil
}

// Save 原子写入批次状态：先写临时文件再重命名覆盖
func (s *Store) Save(batch *TransferBatch) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	final := s.path(batch.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("替换状态文件失败: %w", err)
	}
	return nil
}

// Clear 删除指定批次的状态文件，不存在时不报错
func (s *Store) Clear(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("删除状态文件失败: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
