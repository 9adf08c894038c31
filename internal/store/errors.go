package store

import (
	"errors"
	"fmt"
)

// 可预期的业务结果，调用方用 errors.Is 判断
var (
	ErrNotFound        = errors.New("记录不存在")
	ErrDuplicateKey    = errors.New("记录已存在")
	ErrNotRegistered   = errors.New("用户未在该列表中登记")
	ErrNothingToRemove = errors.New("没有可删除的回档")
)

// StorageError 表示存储层的非预期失败（连接、约束等），不做自动重试
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("存储操作 %s 失败: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrap 把预期之外的错误包装为 StorageError，已知的业务错误原样返回
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrNotRegistered),
		errors.Is(err, ErrNothingToRemove):
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageFailure 判断错误是否为存储层失败
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
