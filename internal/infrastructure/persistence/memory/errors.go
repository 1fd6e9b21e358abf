package memory

import "errors"

// ErrNotFound 更新不存在的记录
var ErrNotFound = errors.New("record not found")
