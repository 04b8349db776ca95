package run

import (
	"time"

	"github.com/John-Robertt/imgsaver/internal/config"
	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/scan"
)

// Observer 用于把“运行进度/单条结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（--json 时 stdout 只能有报告）。
// - Observer 的实现必须并发安全：OnReplaced/OnURLFailed 来自多个 goroutine。
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(cfg config.Options)
	// OnOutputReady 在输出目录就绪后调用；created 表示本次运行新建了它。
	OnOutputReady(dir string, created bool)
	// OnFileSkipped 对每个被跳过的文件调用一次（读取失败/二进制/非 UTF-8 等）。
	OnFileSkipped(s scan.Skipped)
	// OnReplaced 在一处 URL 被替换并落盘后调用。
	OnReplaced(file, url, ref string, reused bool)
	// OnURLFailed 在确认是图片但下载或写回失败时调用。
	OnURLFailed(file, url string, err error)
	// OnDone 在所有任务结束后调用一次。
	OnDone(rr domain.RunReport, dur time.Duration)
}
