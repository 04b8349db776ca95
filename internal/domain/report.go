package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusReplaced = "replaced"
	StatusNotImage = "not_image"
	StatusFailed   = "failed"
)

const (
	ErrCodeDownloadFailed = "download_failed"
	ErrCodeWriteFailed    = "write_failed"
	ErrCodeURLNotFound    = "url_not_found"
)

// RunReport 是一次运行的结果汇总（--json 输出 / 终端摘要）。
type RunReport struct {
	Root   string `json:"root"`
	Output string `json:"output"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []URLResult   `json:"items"`
	Skipped []SkippedFile `json:"skipped"`
}

type ReportSummary struct {
	Files    int `json:"files"`
	Skipped  int `json:"skipped"`
	URLs     int `json:"urls"`
	Images   int `json:"images"`
	Replaced int `json:"replaced"`
	Failed   int `json:"failed"`
}

// URLResult 对应一次 URL 出现（同一 URL 在文件中出现两次就有两条）。
type URLResult struct {
	File        string `json:"file"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	ContentType string `json:"content_type"`
	LocalRef    string `json:"local_ref"`
	Reused      bool   `json:"reused"`
	ErrorCode   string `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
}

type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按 (file, url) 稳定排序；skipped 按 file 排序
// 3) summary 由 items/skipped 计算得出（Files 由遍历阶段写入，这里不改）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Items == nil {
		r.Items = []URLResult{}
	}
	if r.Skipped == nil {
		r.Skipped = []SkippedFile{}
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.URL < b.URL
	})
	sort.SliceStable(r.Skipped, func(i, j int) bool { return r.Skipped[i].File < r.Skipped[j].File })

	s := ReportSummary{Files: r.Summary.Files, Skipped: len(r.Skipped), URLs: len(r.Items)}
	for _, it := range r.Items {
		switch it.Status {
		case StatusReplaced:
			s.Images++
			s.Replaced++
		case StatusFailed:
			s.Images++
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
