package download

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewName 生成本次运行内唯一的文件名主体（不含扩展名）："<unix 毫秒>-<8 位随机 hex>"。
//
// 毫秒时间戳保留“按下载时间排序”的可读性，随机段防止同一毫秒内的碰撞。
func NewName() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + token[:8]
}
