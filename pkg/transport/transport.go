package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound 表示远端对象不存在
var ErrNotFound = errors.New("remote object not found")

// ProgressSample 是传输过程中的一次进度采样
type ProgressSample struct {
	BytesDone  int64
	TotalBytes int64
	At         time.Time
}

// RemoteObject 描述远端列举得到的一个对象
type RemoteObject struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Transport 抽象外部对象存储命令的能力，引擎只依赖这三种操作
type Transport interface {
	// Copy 传输单个文件，进度采样通过 onProgress 回调给出，onProgress 可为 nil
	Copy(ctx context.Context, source, target string, onProgress func(ProgressSample)) error
	// Stat 返回远端对象大小，对象不存在时返回 ErrNotFound
	Stat(ctx context.Context, target string) (int64, error)
	// List 递归列举指定前缀下的全部对象
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
}

// Authenticator 抽象认证检查与登录，认证失败对整个批次是致命的
type Authenticator interface {
	Check(ctx context.Context) (bool, error)
	Login(ctx context.Context) error
}

// AuthError 表示认证失败，整批终止
type AuthError struct {
	Profile string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("认证失败 (profile=%s): %v", e.Profile, e.Err)
	}
	return fmt.Sprintf("认证失败 (profile=%s)", e.Profile)
}

func (e *AuthError) Unwrap() error { return e.Err }
