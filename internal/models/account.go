package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// AccountStatus 账号状态
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"   // 可用
	AccountInactive AccountStatus = "inactive" // 停用
	AccountBanned   AccountStatus = "banned"   // 封禁
)

const (
	// MaxAccountNameLength 账号名称最大长度(字符)
	MaxAccountNameLength = 100
	// MinCookieLength Cookie最小长度
	MinCookieLength = 10
)

// Valid 判断状态是否合法
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountBanned:
		return true
	}
	return false
}

// ParseAccountStatus 解析状态字符串(不区分大小写)
func ParseAccountStatus(s string) (AccountStatus, error) {
	st := AccountStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: 未知账号状态 %q", ErrInvalidAccount, s)
	}
	return st, nil
}

// Account 轮换使用的平台账号
type Account struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Cookie     string        `json:"-"` // 凭证,不参与序列化
	Status     AccountStatus `json:"status"`
	UsageCount int64         `json:"requestCount"`
	LastUsedAt *time.Time    `json:"lastUsedAt"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// NewAccount 创建新账号,生成ID并置为可用状态
func NewAccount(name, cookie string) (*Account, error) {
	now := time.Now()
	a := &Account{
		ID:        newAccountID(),
		Name:      strings.TrimSpace(name),
		Cookie:    strings.TrimSpace(cookie),
		Status:    AccountActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate 校验账号字段
func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: 账号名称不能为空", ErrInvalidAccount)
	}
	if utf8.RuneCountInString(a.Name) > MaxAccountNameLength {
		return fmt.Errorf("%w: 账号名称不能超过%d个字符", ErrInvalidAccount, MaxAccountNameLength)
	}
	if len(a.Cookie) < MinCookieLength {
		return fmt.Errorf("%w: Cookie长度至少为%d", ErrInvalidAccount, MinCookieLength)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: 未知账号状态 %q", ErrInvalidAccount, a.Status)
	}
	return nil
}

// IsActive 是否可参与轮换
func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}
