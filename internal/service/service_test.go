package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/alerting"
	"morpho-rate-alerts/internal/config"
	"morpho-rate-alerts/internal/fetcher"
	"morpho-rate-alerts/internal/metrics"
	"morpho-rate-alerts/internal/storage"
)

type staticMarket struct {
	apy string
	err error
}

func (m *staticMarket) FetchMarket(ctx context.Context) (fetcher.MarketSnapshot, error) {
	if m.err != nil {
		return fetcher.MarketSnapshot{}, m.err
	}
	return fetcher.MarketSnapshot{
		BorrowAPY:   decimal.RequireFromString(m.apy),
		Utilization: decimal.RequireFromString("0.9"),
		Loan:        fetcher.Asset{Symbol: "USDC"},
		Collateral:  fetcher.Asset{Symbol: "WETH"},
	}, nil
}

type recordingNotifier struct {
	sent []alerting.Notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

type memoryStore struct {
	state  storage.AlertState
	saves  int
	locked bool
}

func (s *memoryStore) Load(ctx context.Context) storage.AlertState { return s.state }

func (s *memoryStore) Save(ctx context.Context, state storage.AlertState) error {
	s.state = state
	s.saves++
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) TryLock(ctx context.Context) (func(), bool, error) {
	if s.locked {
		return nil, false, nil
	}
	s.locked = true
	return func() { s.locked = false }, true, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Market.UniqueKey = "0xmarket"
	cfg.Market.ChainID = 1
	cfg.Alerting.Threshold = 0.07
	cfg.State.Lock = true
	return cfg
}

func TestCheckScenario(t *testing.T) {
	market := &staticMarket{}
	notifier := &recordingNotifier{}
	store := &memoryStore{}
	svc := New(testConfig(), nil, market, store, notifier, zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	steps := []struct {
		apy       string
		outcome   string
		wasAbove  bool
		direction alerting.Direction
	}{
		{apy: "0.08", outcome: metrics.OutcomeNotified, wasAbove: true, direction: alerting.DirectionAbove},
		{apy: "0.065", outcome: metrics.OutcomeNotified, wasAbove: false, direction: alerting.DirectionBelow},
		{apy: "0.069", outcome: metrics.OutcomeSilent, wasAbove: false},
	}

	for i, step := range steps {
		market.apy = step.apy
		res, err := svc.Check(ctx, now)
		if err != nil {
			t.Fatalf("第 %d 步不应报错: %v", i, err)
		}
		if res.Outcome != step.outcome {
			t.Fatalf("第 %d 步 outcome 期望 %s, 实际 %s", i, step.outcome, res.Outcome)
		}
		if store.state.WasAbove != step.wasAbove {
			t.Fatalf("第 %d 步 was_above 期望 %v", i, step.wasAbove)
		}
		if res.Decision.Direction != step.direction {
			t.Fatalf("第 %d 步方向期望 %q, 实际 %q", i, step.direction, res.Decision.Direction)
		}
		if store.saves != i+1 {
			t.Fatalf("每次运行都应写入状态, 实际写入 %d 次", store.saves)
		}
		if store.locked {
			t.Fatal("运行结束后应释放锁")
		}
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("期望发送 2 条消息, 实际 %d", len(notifier.sent))
	}
}

func TestCheckNotifyFailureKeepsState(t *testing.T) {
	store := &memoryStore{}
	notifier := &recordingNotifier{err: alerting.ErrNotifyFailed}
	svc := New(testConfig(), nil, &staticMarket{apy: "0.09"}, store, notifier, zerolog.Nop())

	res, err := svc.Check(context.Background(), time.Now())
	if !errors.Is(err, alerting.ErrNotifyFailed) {
		t.Fatalf("发送失败应返回 ErrNotifyFailed, 实际 %v", err)
	}
	if res.Outcome != metrics.OutcomeFailed {
		t.Fatalf("outcome 应为 failed, 实际 %s", res.Outcome)
	}
	if store.saves != 0 || store.state.WasAbove {
		t.Fatal("发送失败时不应写入状态")
	}
}

func TestCheckFetchFailureSkipsNotifyAndSave(t *testing.T) {
	store := &memoryStore{state: storage.AlertState{WasAbove: true}}
	notifier := &recordingNotifier{}
	market := &staticMarket{err: fetcher.ErrDataUnavailable}
	svc := New(testConfig(), nil, market, store, notifier, zerolog.Nop())

	_, err := svc.Check(context.Background(), time.Now())
	if !errors.Is(err, fetcher.ErrDataUnavailable) {
		t.Fatalf("应返回 ErrDataUnavailable, 实际 %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("获取数据失败时不应发送消息")
	}
	if store.saves != 0 || !store.state.WasAbove {
		t.Fatal("获取数据失败时不应修改状态")
	}
}

func TestCheckSkipsWhenLocked(t *testing.T) {
	store := &memoryStore{locked: true}
	notifier := &recordingNotifier{}
	svc := New(testConfig(), nil, &staticMarket{apy: "0.09"}, store, notifier, zerolog.Nop())

	res, err := svc.Check(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("锁被占用时应跳过而非报错: %v", err)
	}
	if res.Outcome != metrics.OutcomeSkipped {
		t.Fatalf("outcome 应为 skipped, 实际 %s", res.Outcome)
	}
	if len(notifier.sent) != 0 || store.saves != 0 {
		t.Fatal("跳过的运行不应发送或写入")
	}
}

func TestCheckIgnoresLockWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.State.Lock = false
	store := &memoryStore{locked: true}
	svc := New(cfg, nil, &staticMarket{apy: "0.01"}, store, &recordingNotifier{}, zerolog.Nop())

	res, err := svc.Check(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if res.Outcome != metrics.OutcomeSilent || store.saves != 1 {
		t.Fatalf("关闭锁后应正常运行, 实际 %+v saves=%d", res, store.saves)
	}
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	store := &memoryStore{}
	notifier := &recordingNotifier{}
	svc := New(testConfig(), nil, &staticMarket{apy: "0.2"}, store, notifier, zerolog.Nop())

	res, err := svc.Preview(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Preview 不应报错: %v", err)
	}
	if !res.Decision.Notify {
		t.Fatal("Preview 应给出将要告警的判断")
	}
	if len(notifier.sent) != 0 || store.saves != 0 {
		t.Fatal("Preview 不应发送或写入")
	}
}

func TestRunWithoutScheduler(t *testing.T) {
	svc := New(testConfig(), nil, &staticMarket{apy: "0.01"}, &memoryStore{}, &recordingNotifier{}, zerolog.Nop())
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("未配置 scheduler 时 Run 应报错")
	}
}
