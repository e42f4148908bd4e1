package service

import (
	"codequest_backend/internal/config"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChargeResult 支付成功后的凭据
type ChargeResult struct {
	Reference string
}

// PaymentProvider 支付协作方。同步调用，超时视为失败，
// 由预约服务走补偿路径，绝不默认成功。
type PaymentProvider interface {
	Charge(ctx context.Context, amount float64, payerID uint, cardNumber string) (*ChargeResult, error)
}

// MockPaymentProvider 模拟收单：带固定时延，按卡号尾号模拟拒付。
// 尾号 0002 是约定的拒付测试卡。
type MockPaymentProvider struct {
	Delay time.Duration
}

func NewPaymentProvider(cfg *config.PaymentConfig) PaymentProvider {
	// 目前只有 mock 一种实现，配置位留给真实网关
	return &MockPaymentProvider{Delay: 200 * time.Millisecond}
}

func (p *MockPaymentProvider) Charge(ctx context.Context, amount float64, payerID uint, cardNumber string) (*ChargeResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.Delay):
	}

	if amount < 0 {
		return nil, errors.New("invalid charge amount")
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cardNumber)

	if len(digits) < 12 || len(digits) > 19 {
		return nil, errors.New("invalid card number")
	}
	if strings.HasSuffix(digits, "0002") {
		return nil, errors.New("card declined")
	}

	return &ChargeResult{Reference: fmt.Sprintf("pay_%s", uuid.NewString())}, nil
}
