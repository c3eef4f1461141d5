package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrBusy 同一员工同一天的记录正在被处理，稍后重试
var ErrBusy = errors.New("资源繁忙，请稍后重试")
