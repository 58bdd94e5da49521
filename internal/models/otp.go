package models

import "time"

// OTPRequest is one issued code for an email address. Rows are never
// rewritten after UsedAt is set; Attempts only moves forward.
type OTPRequest struct {
	ID        string     `json:"id" dynamodbav:"id"`
	Email     string     `json:"email" dynamodbav:"email"`
	CodeHash  string     `json:"code_hash" dynamodbav:"code_hash"`
	Attempts  int        `json:"attempts" dynamodbav:"attempts"`
	CreatedAt time.Time  `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" dynamodbav:"used_at,omitempty"`
	RequestIP string     `json:"request_ip,omitempty" dynamodbav:"request_ip,omitempty"`
}

func (o *OTPRequest) IsUsed() bool {
	return o.UsedAt != nil
}

func (o *OTPRequest) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}
