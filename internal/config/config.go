package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ErrCodeMissingDirectory 表示未提供 --directory。
	ErrCodeMissingDirectory = "config_missing_directory"
	// ErrCodeMissingOutput 表示未提供 --output。
	ErrCodeMissingOutput = "config_missing_output"
	// ErrCodeInvalid 表示参数或环境变量取值不合法。
	ErrCodeInvalid = "config_invalid"
)

// 仅通过环境变量（或 --env-file）暴露的高级选项。
const (
	EnvProbeTimeout    = "IMGSAVER_PROBE_TIMEOUT"
	EnvDownloadTimeout = "IMGSAVER_DOWNLOAD_TIMEOUT"
	EnvProxy           = "IMGSAVER_PROXY"
	EnvUserAgent       = "IMGSAVER_USER_AGENT"
)

// CLIArgs 是命令行原样解析出的参数。
type CLIArgs struct {
	Directory string
	Output    string
	Prefix    string
	Ignore    []string
	Silent    bool
	Verbose   bool
	HTML      bool
	Dedupe    bool
	JSON      bool
	EnvFile   string
}

// Options 是合并并做最小规范化后的最终配置；各组件只消费它，不再读任何全局状态。
type Options struct {
	// Directory 是扫描根目录（clean + absolute）。
	Directory string
	// Output 是用户给出的输出目录原文（去掉末尾 '/'），用于拼接本地引用。
	Output string
	// OutputDir 是输出目录的绝对路径，用于实际落盘。
	OutputDir string
	// Prefix 非空时，本地引用 = Prefix + 文件名。
	Prefix string
	Ignore []string

	Silent  bool
	Verbose bool
	HTML    bool
	Dedupe  bool
	JSON    bool

	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
	ProxyURL        string
	UserAgent       string
}

// LocalReference 返回写回文本中的本地引用。
func (o Options) LocalReference(fileName string) string {
	if o.Prefix != "" {
		return o.Prefix + fileName
	}
	return o.Output + "/" + fileName
}

// Ignored 判断扩展名（含前导 '.'，大小写敏感）是否在忽略列表中。
func (o Options) Ignored(ext string) bool {
	for _, x := range o.Ignore {
		if x == ext {
			return true
		}
	}
	return false
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingDirectory:
		return "请使用 -d/--directory 指定要扫描的目录"
	case ErrCodeMissingOutput:
		return "请使用 -o/--output 指定图片输出目录"
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%s 无效：%v", e.Code, e.Field, e.Err)
		}
		return fmt.Sprintf("%s：%s 无效", e.Code, e.Field)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Getenv 抽象环境变量读取，便于测试注入。
type Getenv func(key string) string

// EnvWithFile 读取 dotenv 文件，返回“进程环境优先、文件兜底”的 Getenv（与 godotenv.Load 的覆盖语义一致）。
func EnvWithFile(path string, base Getenv) (Getenv, error) {
	if base == nil {
		base = os.Getenv
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Field: "--env-file", Err: err}
	}
	return func(key string) string {
		if v := base(key); v != "" {
			return v
		}
		return m[key]
	}, nil
}

// Load 校验 CLI 参数并与环境变量合并为最终配置。
//
// 必填项缺失时立即返回，不触碰文件系统。
// 覆盖优先级：CLI > 环境变量 > 内置默认值（默认值由 httpx 决定，这里保持 0）。
func Load(cwd string, cli CLIArgs, getenv Getenv) (Options, error) {
	if strings.TrimSpace(cli.Directory) == "" {
		return Options{}, &Error{Code: ErrCodeMissingDirectory, Field: "--directory"}
	}
	if strings.TrimSpace(cli.Output) == "" {
		return Options{}, &Error{Code: ErrCodeMissingOutput, Field: "--output"}
	}
	if getenv == nil {
		getenv = os.Getenv
	}

	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Options{}, &Error{Code: ErrCodeInvalid, Field: "cwd", Err: err}
	}

	output := strings.TrimSpace(cli.Output)
	if trimmed := strings.TrimRight(output, "/"); trimmed != "" {
		output = trimmed
	}

	o := Options{
		Directory: absCleanFrom(cwdAbs, cli.Directory),
		Output:    output,
		OutputDir: absCleanFrom(cwdAbs, cli.Output),
		Prefix:    cli.Prefix,
		Ignore:    cleanIgnore(cli.Ignore),
		Silent:    cli.Silent,
		Verbose:   cli.Verbose && !cli.Silent,
		HTML:      cli.HTML,
		Dedupe:    cli.Dedupe,
		JSON:      cli.JSON,
		UserAgent: strings.TrimSpace(getenv(EnvUserAgent)),
	}

	if o.ProbeTimeout, err = parseDuration(getenv, EnvProbeTimeout); err != nil {
		return Options{}, err
	}
	if o.DownloadTimeout, err = parseDuration(getenv, EnvDownloadTimeout); err != nil {
		return Options{}, err
	}

	o.ProxyURL = strings.TrimSpace(getenv(EnvProxy))
	if o.ProxyURL != "" {
		u, err := url.Parse(o.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			if err == nil {
				err = fmt.Errorf("缺少 scheme 或 host：%q", o.ProxyURL)
			}
			return Options{}, &Error{Code: ErrCodeInvalid, Field: EnvProxy, Err: err}
		}
	}

	return o, nil
}

func parseDuration(getenv Getenv, key string) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &Error{Code: ErrCodeInvalid, Field: key, Err: err}
	}
	if d <= 0 {
		return 0, &Error{Code: ErrCodeInvalid, Field: key, Err: fmt.Errorf("必须为正数，实际 %s", raw)}
	}
	return d, nil
}

// cleanIgnore 去掉空白项；不补前导 '.'，也不做大小写归一化（按原样匹配 filepath.Ext）。
func cleanIgnore(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		out = append(out, x)
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
