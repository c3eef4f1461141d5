package service

import (
	"errors"
	"strings"
)

// ── 跨模块通用业务错误 ──

var (
	// ErrInvalidInput 字段级校验失败
	ErrInvalidInput = errors.New("请求参数无效")
	// ErrRuleViolation 工作时间或打卡顺序规则不满足
	ErrRuleViolation = errors.New("打卡规则校验未通过")
)

// InputError 汇总所有字段错误，一次返回给调用方
type InputError struct {
	Problems []string
}

func (e *InputError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// RuleViolationError 规则判定失败，Message 为可直接展示给用户的说明
type RuleViolationError struct {
	Message string
}

func (e *RuleViolationError) Error() string { return e.Message }

func (e *RuleViolationError) Unwrap() error { return ErrRuleViolation }
