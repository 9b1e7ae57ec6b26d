package types

import (
	"strings"
	"time"
)

// 线索字段的占位值，沿用线索表格的约定
const (
	UnknownName       = "Unknown"
	NullEmail         = "NULL"
	DefaultSummary    = "No input yet"
	NoSummaryProvided = "No summary provided"
)

// LeadStatus 线索的邮件投递状态
type LeadStatus string

const (
	LeadStatusNew      LeadStatus = ""
	LeadStatusSent     LeadStatus = "SENT"
	LeadStatusFailed   LeadStatus = "FAILED"
	LeadStatusCampaign LeadStatus = "Email Sent"
)

// Lead 潜在客户
type Lead struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Summary   string     `json:"summary"`
	Status    LeadStatus `json:"status,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// NewUnknownLead 返回字段全部为占位值的线索
func NewUnknownLead() Lead {
	return Lead{Name: UnknownName, Email: NullEmail, Summary: DefaultSummary}
}

// HasEmail 判断线索是否带有可投递的邮箱
func (l Lead) HasEmail() bool {
	return IsDeliverableEmail(l.Email)
}

// IsDeliverableEmail 空字符串和 "NULL" 视为缺失
func IsDeliverableEmail(email string) bool {
	e := strings.TrimSpace(email)
	return e != "" && !strings.EqualFold(e, NullEmail)
}

// DisplayName 返回用于称呼的名字
func (l Lead) DisplayName() string {
	if strings.TrimSpace(l.Name) == "" {
		return UnknownName
	}
	return l.Name
}

// Normalize 把空字段替换为占位值
func (l Lead) Normalize() Lead {
	if strings.TrimSpace(l.Name) == "" || strings.EqualFold(strings.TrimSpace(l.Name), "null") {
		l.Name = UnknownName
	}
	if !IsDeliverableEmail(l.Email) {
		l.Email = NullEmail
	}
	l.Email = strings.TrimSpace(l.Email)
	return l
}
