// Package payment 定义打赏结算的外部能力边界
package payment

import (
	"context"
	"fmt"
	"sync"

	"chatsphere_server/pkg/util/snowflake"
)

// Charge 一次结算请求
type Charge struct {
	Sender    string
	Recipient string
	Amount    float64
	Currency  string
	RoomID    string
}

// Result 结算结果，Completed 为 false 时 Reason 说明拒绝原因
type Result struct {
	Completed bool
	Reference string
	Reason    string
}

// Settler 支付结算能力，调用方阻塞等待结果
type Settler interface {
	Charge(ctx context.Context, c Charge) (Result, error)
}

// LedgerSettler 进程内记账的结算实现，单笔上限之内全部通过
// 生产环境替换为真实支付网关
type LedgerSettler struct {
	MaxAmount float64

	mu      sync.Mutex
	settled map[string]float64 // recipient -> volume
}

// NewLedgerSettler 创建进程内记账结算，maxAmount<=0 表示不设上限
func NewLedgerSettler(maxAmount float64) *LedgerSettler {
	return &LedgerSettler{MaxAmount: maxAmount, settled: make(map[string]float64)}
}

func (l *LedgerSettler) Charge(ctx context.Context, c Charge) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if c.Amount <= 0 {
		return Result{Reason: "invalid amount"}, nil
	}
	if l.MaxAmount > 0 && c.Amount > l.MaxAmount {
		return Result{Reason: fmt.Sprintf("amount exceeds limit %.2f", l.MaxAmount)}, nil
	}
	ref := snowflake.GenerateIDString()
	l.mu.Lock()
	l.settled[c.Recipient] += c.Amount
	l.mu.Unlock()
	return Result{Completed: true, Reference: "txn_" + ref}, nil
}

// Settled 收款人累计结算金额
func (l *LedgerSettler) Settled(recipient string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settled[recipient]
}

// SettlerFunc 把普通函数适配为 Settler，测试用
type SettlerFunc func(ctx context.Context, c Charge) (Result, error)

func (f SettlerFunc) Charge(ctx context.Context, c Charge) (Result, error) { return f(ctx, c) }
