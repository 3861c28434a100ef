package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/inhies/go-bytesize"
)

const authCheckTimeout = 10 * time.Second

// AWSCLI 通过调用外部 aws 命令实现 Transport 与 Authenticator
type AWSCLI struct {
	Profile string
	Command string
}

// NewAWSCLI 创建 aws 命令传输器，profile 可为空
func NewAWSCLI(profile string) *AWSCLI {
	return &AWSCLI{Profile: profile, Command: "aws"}
}

func (a *AWSCLI) bin() string {
	if a.Command == "" {
		return "aws"
	}
	return a.Command
}

func (a *AWSCLI) withProfile(args []string) []string {
	if a.Profile != "" {
		args = append(args, "--profile", a.Profile)
	}
	return args
}

// Copy 执行 aws s3 cp，逐行解析其进度输出
func (a *AWSCLI) Copy(ctx context.Context, source, target string, onProgress func(ProgressSample)) error {
	args := a.withProfile([]string{"s3", "cp", source, target})
	cmd := exec.CommandContext(ctx, a.bin(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动传输命令失败: %w", err)
	}

	readErr := consumeProgress(stdout, onProgress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("传输命令退出异常: %w: %s", err, lastLine(stderr.Bytes()))
	}
	if readErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("读取传输输出失败: %w", readErr)
	}
	return nil
}

// consumeProgress 逐行消费传输命令的进度输出。
// aws s3 cp 的进度行以 \r 刷新，按 \r 和 \n 同时切分
func consumeProgress(r io.Reader, onProgress func(ProgressSample)) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanCarriageLines)
	for scanner.Scan() {
		if sample, ok := parseProgressLine(scanner.Text()); ok && onProgress != nil {
			sample.At = time.Now()
			onProgress(sample)
		}
	}
	return scanner.Err()
}

// Stat 通过 aws s3api head-object 查询远端对象大小
func (a *AWSCLI) Stat(ctx context.Context, target string) (int64, error) {
	bucket, key, err := ParseS3URI(target)
	if err != nil {
		return 0, err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return 0, fmt.Errorf("stat 需要完整对象 key: %s", target)
	}
	args := a.withProfile([]string{
		"s3api", "head-object",
		"--bucket", bucket,
		"--key", key,
		"--query", "ContentLength",
		"--output", "text",
	})
	cmd := exec.CommandContext(ctx, a.bin(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if isNotFoundOutput(stderr.Bytes()) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("查询远端对象失败: %w: %s", err, lastLine(stderr.Bytes()))
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析对象大小失败: %q", strings.TrimSpace(string(out)))
	}
	return size, nil
}

// List 通过 aws s3 ls --recursive 列举前缀下全部对象
func (a *AWSCLI) List(ctx context.Context, prefix string) ([]RemoteObject, error) {
	args := a.withProfile([]string{"s3", "ls", prefix, "--recursive"})
	cmd := exec.CommandContext(ctx, a.bin(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("列举远端对象失败: %w: %s", err, lastLine(stderr.Bytes()))
	}
	return parseListOutput(out), nil
}

// Check 通过 aws sts get-caller-identity 判断当前 profile 是否已认证
func (a *AWSCLI) Check(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, authCheckTimeout)
	defer cancel()
	args := a.withProfile([]string{"sts", "get-caller-identity"})
	cmd := exec.CommandContext(ctx, a.bin(), args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("执行认证检查失败: %w", err)
}

// Login 执行 aws sso login，交互过程直通当前终端
func (a *AWSCLI) Login(ctx context.Context) error {
	args := a.withProfile([]string{"sso", "login"})
	cmd := exec.CommandContext(ctx, a.bin(), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return &AuthError{Profile: a.Profile, Err: err}
	}
	return nil
}

// ParseS3URI 拆分 s3://bucket/key，key 可为空或以 / 结尾的前缀
func ParseS3URI(raw string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", fmt.Errorf("非法 s3 路径: %s", raw)
	}
	rest := strings.TrimPrefix(raw, scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("非法 s3 路径: %s", raw)
	}
	return bucket, key, nil
}

// parseProgressLine 解析形如
// "Completed 1.2 MiB/4.5 MiB (2.1 MiB/s) with 1 file(s) remaining" 的进度行
func parseProgressLine(line string) (ProgressSample, bool) {
	line = strings.TrimSpace(line)
	const prefix = "Completed "
	if !strings.HasPrefix(line, prefix) {
		return ProgressSample{}, false
	}
	rest := strings.TrimPrefix(line, prefix)
	if idx := strings.Index(rest, " ("); idx >= 0 {
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, " with "); idx >= 0 {
		rest = rest[:idx]
	}
	doneText, totalText, found := strings.Cut(rest, "/")
	if !found {
		return ProgressSample{}, false
	}
	done, err := parseByteFigure(doneText)
	if err != nil {
		return ProgressSample{}, false
	}
	total, err := parseByteFigure(strings.TrimPrefix(strings.TrimSpace(totalText), "~"))
	if err != nil {
		return ProgressSample{}, false
	}
	return ProgressSample{BytesDone: done, TotalBytes: total}, true
}

// parseByteFigure 解析 aws 输出中的人类可读字节数，如 "515 Bytes"、"1.2 MiB"
func parseByteFigure(text string) (int64, error) {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "Bytes", "B")
	text = strings.ReplaceAll(text, "Byte", "B")
	// go-bytesize 的 KB/MB 本身就是 1024 进制，与 KiB/MiB 同义
	text = strings.ReplaceAll(text, "iB", "B")
	size, err := bytesize.Parse(text)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

// parseListOutput 解析 aws s3 ls --recursive 的输出，
// 每行形如 "2024-01-15 10:30:45   12345678 path/to/file"
func parseListOutput(out []byte) []RemoteObject {
	var objects []RemoteObject
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if obj, ok := parseListLine(scanner.Text()); ok {
			objects = append(objects, obj)
		}
	}
	return objects
}

func parseListLine(line string) (RemoteObject, bool) {
	// 前三个字段依次为日期、时间、大小，key 在其后且可能包含空格
	var fields [3]string
	rest := line
	for i := range fields {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return RemoteObject{}, false
		}
		fields[i] = rest[:idx]
		rest = rest[idx:]
	}
	key := strings.TrimLeft(rest, " \t")
	if key == "" || strings.HasSuffix(key, "/") {
		return RemoteObject{}, false
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return RemoteObject{}, false
	}
	modTime, _ := time.ParseInLocation("2006-01-02 15:04:05", fields[0]+" "+fields[1], time.Local)
	return RemoteObject{Key: key, Size: size, ModTime: modTime}, true
}

func isNotFoundOutput(stderr []byte) bool {
	text := string(stderr)
	return strings.Contains(text, "Not Found") ||
		strings.Contains(text, "NoSuchKey") ||
		strings.Contains(text, "(404)")
}

// scanCarriageLines 同时以 \r 与 \n 作为行分隔，适配进度刷新输出
func scanCarriageLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
