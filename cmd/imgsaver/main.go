package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/imgsaver/internal/app/run"
	"github.com/John-Robertt/imgsaver/internal/config"
)

var version = "dev"

func main() {
	os.Exit(runCLI(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// runCLI 解析参数并执行一次运行，返回进程退出码。
//
// 退出码：
// - 1：缺少 --directory/--output、配置非法、输出目录不可用、根目录无法遍历
// - 0：其余情况（包括单个文件/URL 的失败）
func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli config.CLIArgs
	exit := 0

	cmd := &cobra.Command{
		Use:           "imgsaver -d <directory> -o <output>",
		Short:         "Download remote images referenced in text files and rewrite them to local copies",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exit = execute(cmd.Context(), cli, stdout, stderr)
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&cli.Directory, "directory", "d", "", "Directory to scan (required)")
	f.StringVarP(&cli.Output, "output", "o", "", "Directory to save images to; created if missing (required)")
	f.StringVarP(&cli.Prefix, "prefix", "p", "", "Prefix for rewritten references (default: <output>/)")
	f.StringSliceVarP(&cli.Ignore, "ignore", "i", []string{}, "File extensions to skip, e.g. '.md,.txt'")
	f.BoolVarP(&cli.Silent, "silent", "s", false, "Suppress progress and log output")
	f.BoolVarP(&cli.Verbose, "verbose", "v", false, "Enable debug logging")
	f.BoolVar(&cli.HTML, "html", false, "Only take image URLs from image attributes in .html/.htm files")
	f.BoolVar(&cli.Dedupe, "dedupe", false, "Download each URL once per run and reuse the local file")
	f.BoolVar(&cli.JSON, "json", false, "Print the run report as JSON on stdout")
	f.StringVar(&cli.EnvFile, "env-file", "", "Load IMGSAVER_* variables from a dotenv file")

	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(stderr, err)
		return 1
	}
	return exit
}

func execute(ctx context.Context, cli config.CLIArgs, stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		printError(stderr, fmt.Errorf("读取当前目录失败：%w", err))
		return 1
	}

	getenv, err := config.EnvWithFile(cli.EnvFile, os.Getenv)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	opts, err := config.Load(cwd, cli, getenv)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	logger := newLogger(stderr, opts)
	deps, err := run.NewDeps(opts, logger)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	// --json 时 stdout 只留给报告，进度改写到 stderr。
	var obs run.Observer
	if !opts.Silent {
		w := stdout
		if opts.JSON {
			w = stderr
		}
		obs = newConsole(w)
	}

	rr, runErr := run.Execute(ctx, opts, deps, obs)
	if opts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rr); err != nil {
			logger.Error().Err(err).Msg("输出报告失败")
		}
	}
	if runErr != nil {
		printError(stderr, runErr)
		return 1
	}
	return 0
}

// newLogger 构造诊断日志：默认只输出 error，-v 输出 debug，-s 完全关闭。
// 面向用户的进度由 console 负责，这里不重复。
func newLogger(w io.Writer, o config.Options) zerolog.Logger {
	level := zerolog.ErrorLevel
	switch {
	case o.Silent:
		level = zerolog.Disabled
	case o.Verbose:
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("[-] "+err.Error()))
}
