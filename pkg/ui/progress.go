package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/inhies/go-bytesize"
)

// Progress 定义统一的进度更新接口
type Progress interface {
	Start(totalItems int)
	StartItem(index, total int, target string, size int64)
	Sample(done, total int64, at time.Time)
	FinishItem()
	Finish()
}

const (
	progressWidth = 24
	maxTargetLen  = 48
)

// BarProgress 实现单行文本进度条，整行覆盖刷新，并与日志输出互斥
type BarProgress struct {
	mu         sync.Mutex
	writer     io.Writer
	itemIndex  int
	itemTotal  int
	target     string
	totalBytes int64
	doneBytes  int64
	speed      float64
	lastAt     time.Time
	lastDone   int64
	hasSample  bool
	lastLine   string
	active     bool
}

// NewBarProgress 创建进度条实例
func NewBarProgress(writer io.Writer) *BarProgress {
	return &BarProgress{writer: writer}
}

func (p *BarProgress) Start(totalItems int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.itemTotal = totalItems
	p.itemIndex = 0
	p.active = true
	p.lastLine = ""
}

func (p *BarProgress) StartItem(index, total int, target string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.itemIndex = index
	p.itemTotal = total
	p.target = shortenTarget(target, maxTargetLen)
	p.totalBytes = size
	p.doneBytes = 0
	p.speed = 0
	p.hasSample = false
	p.renderLocked(false)
}

// Sample 消费一次 (已传字节, 总字节, 时间) 采样，
// 瞬时速度取自相邻两次采样的差值
func (p *BarProgress) Sample(done, total int64, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	if total > 0 {
		p.totalBytes = total
	}
	if p.hasSample {
		dt := at.Sub(p.lastAt).Seconds()
		if dt > 0 && done >= p.lastDone {
			p.speed = float64(done-p.lastDone) / dt
		}
	}
	p.doneBytes = done
	p.lastDone = done
	p.lastAt = at
	p.hasSample = true
	p.renderLocked(false)
}

func (p *BarProgress) FinishItem() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	if p.totalBytes > 0 {
		p.doneBytes = p.totalBytes
	}
	p.speed = 0
	p.renderLocked(false)
}

func (p *BarProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.renderLocked(true)
	p.active = false
	p.lastLine = ""
}

// WrapWriter 返回一个 writer，保证日志输出前清除进度条，输出后重新绘制
func (p *BarProgress) WrapWriter(w io.Writer) io.Writer {
	if p == nil {
		return w
	}
	return &progressAwareWriter{progress: p, writer: w}
}

// NoopProgress 在 --no-progress 下使用
type NoopProgress struct{}

func (NoopProgress) Start(totalItems int)                                  {}
func (NoopProgress) StartItem(index, total int, target string, size int64) {}
func (NoopProgress) Sample(done, total int64, at time.Time)                {}
func (NoopProgress) FinishItem()                                           {}
func (NoopProgress) Finish()                                               {}

type progressAwareWriter struct {
	progress *BarProgress
	writer   io.Writer
}

func (pw *progressAwareWriter) Write(b []byte) (int, error) {
	pw.progress.mu.Lock()
	pw.progress.clearLocked()
	n, err := pw.writer.Write(b)
	if pw.progress.active {
		pw.progress.renderLocked(false)
	}
	pw.progress.mu.Unlock()
	return n, err
}

func (p *BarProgress) clearLocked() {
	if p.lastLine == "" || p.writer == nil {
		return
	}
	fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", utf8.RuneCountInString(p.lastLine)))
	p.lastLine = ""
}

// renderLocked 绘制进度行；新行比上一行短时用空格补齐，
// 避免残留上一次渲染的尾部字符
func (p *BarProgress) renderLocked(final bool) {
	if p.writer == nil {
		return
	}
	var percent float64
	if p.totalBytes > 0 {
		percent = float64(p.doneBytes) / float64(p.totalBytes)
		if percent > 1 {
			percent = 1
		}
	}
	filled := int(percent * progressWidth)
	if filled > progressWidth {
		filled = progressWidth
	}
	bar := fmt.Sprintf("[%s%s]", strings.Repeat("#", filled), strings.Repeat("-", progressWidth-filled))
	line := fmt.Sprintf("[%d/%d] %s %s %6.2f%% %v/%v%s%s",
		p.itemIndex, p.itemTotal, p.target, bar, percent*100,
		bytesize.New(float64(p.doneBytes)), bytesize.New(float64(p.totalBytes)),
		p.speedText(), p.etaText())
	pad := ""
	if prev := utf8.RuneCountInString(p.lastLine); prev > utf8.RuneCountInString(line) {
		pad = strings.Repeat(" ", prev-utf8.RuneCountInString(line))
	}
	if final {
		fmt.Fprintf(p.writer, "\r%s%s\n", line, pad)
		p.lastLine = ""
		return
	}
	fmt.Fprintf(p.writer, "\r%s%s", line, pad)
	p.lastLine = line
}

func (p *BarProgress) speedText() string {
	if p.speed <= 0 {
		return ""
	}
	return fmt.Sprintf(" %v/s", bytesize.New(p.speed))
}

// etaText 按剩余字节除以当前速度估算，速度未知时省略
func (p *BarProgress) etaText() string {
	if p.speed <= 0 || p.totalBytes <= 0 || p.doneBytes >= p.totalBytes {
		return ""
	}
	eta := time.Duration(float64(p.totalBytes-p.doneBytes)/p.speed*float64(time.Second)).Round(time.Second)
	return fmt.Sprintf(" ETA %v", eta)
}

func shortenTarget(target string, maxLen int) string {
	clean := strings.NewReplacer("\n", " ", "\r", " ").Replace(target)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	keep := maxLen - 3
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + "..." + string(runes[len(runes)-tail:])
}
