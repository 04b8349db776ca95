package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV 等错误。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标路径类型冲突（例如期望目录但实际是文件）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename 失败。
// 临时文件总是与目标同目录创建，正常情况下不会出现；出现即说明目录本身是挂载点之类的特殊情况。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// EnsureDir 确保 dir 存在且是目录；不存在则递归创建。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileAtomicReplace 在 dir 下原子写入 name（临时文件 + rename），覆盖同名文件。
//
// 用于把替换后的文本写回原文件：读者要么看到旧内容，要么看到新内容，不会看到半截文件。
// perm 为 0 时使用 0o644。
func WriteFileAtomicReplace(dir, name string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	_, err := writeAtomic(dir, name, perm, false, func(w io.Writer) (int64, error) {
		return int64(len(data)), writeAll(w, data)
	})
	return err
}

// WriteStreamNoOverwrite 把 r 流式写入 dir/name（临时文件 + rename），目标已存在则返回 os.ErrExist。
//
// 返回时数据已 Sync 且文件已关闭；失败时不会留下临时文件。
func WriteStreamNoOverwrite(dir, name string, r io.Reader) (int64, error) {
	return writeAtomic(dir, name, 0o644, true, func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	})
}

func checkNoOverwrite(dst string) error {
	fi, err := os.Lstat(dst)
	if err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		return os.ErrExist
	}
	if !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeAtomic(dir, name string, perm os.FileMode, noOverwrite bool, fill func(io.Writer) (int64, error)) (int64, error) {
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)
	if noOverwrite {
		if err := checkNoOverwrite(dst); err != nil {
			return 0, err
		}
	}

	// 同目录临时文件，前缀带 '.'，保证 rename 原子且不污染目录视图。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := fill(tmp)
	if err != nil {
		return n, err
	}
	if err := tmp.Chmod(perm); err != nil {
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}

	if noOverwrite {
		// 名字在本次运行内唯一，这里再查一次只为防止外部进程抢先写入同名文件。
		if err := checkNoOverwrite(dst); err != nil {
			return n, err
		}
	}
	if err := Rename(tmpName, dst); err != nil {
		return n, err
	}

	_ = syncDirBestEffort(dir)
	return n, nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
