package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/fetcher"
	"morpho-rate-alerts/internal/storage"
)

var testNow = time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)

func testRule() Rule {
	return Rule{MarketKey: "0xmarket", ChainID: 1, Threshold: decimal.RequireFromString("0.07")}
}

func snapshot(apy string) fetcher.MarketSnapshot {
	return fetcher.MarketSnapshot{
		UniqueKey:   "0xmarket",
		ChainID:     1,
		BorrowAPY:   decimal.RequireFromString(apy),
		Utilization: decimal.RequireFromString("0.9123"),
		Loan:        fetcher.Asset{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		Collateral:  fetcher.Asset{Symbol: "wstETH", Address: "0x7f39c581f595b53c5cb19bd0b3f8da6c935e2ca0"},
	}
}

func TestEvaluateCrossingScenario(t *testing.T) {
	rule := testRule()
	state := storage.DefaultState()

	d := Evaluate(rule, snapshot("0.08"), state, testNow)
	if !d.Notify || d.Direction != DirectionAbove {
		t.Fatalf("0.08 >= 0.07 应触发上穿告警, 实际 %+v", d)
	}
	if !d.State.WasAbove {
		t.Fatal("上穿后 was_above 应为 true")
	}
	if !strings.Contains(d.Message, "crossed above 7.00%") {
		t.Fatalf("上穿消息不正确: %s", d.Message)
	}
	state = d.State

	d = Evaluate(rule, snapshot("0.065"), state, testNow)
	if !d.Notify || d.Direction != DirectionBelow {
		t.Fatalf("0.065 应触发回落告警, 实际 %+v", d)
	}
	if d.State.WasAbove {
		t.Fatal("回落后 was_above 应为 false")
	}
	if !strings.Contains(d.Message, "fell back below 7.00%") {
		t.Fatalf("回落消息不正确: %s", d.Message)
	}
	state = d.State

	d = Evaluate(rule, snapshot("0.069"), state, testNow)
	if d.Notify || d.Message != "" {
		t.Fatalf("0.069 不应触发告警, 实际 %+v", d)
	}
	if d.State.WasAbove {
		t.Fatal("状态应保持 was_above=false")
	}
}

func TestEvaluateThresholdIsInclusive(t *testing.T) {
	d := Evaluate(testRule(), snapshot("0.07"), storage.DefaultState(), testNow)
	if !d.Notify || !d.IsAbove {
		t.Fatalf("等于阈值应视为上穿, 实际 %+v", d)
	}
}

func TestEvaluateConstantSequenceNotifiesOnce(t *testing.T) {
	cases := []struct {
		name string
		apy  string
		want int
	}{
		{name: "always above", apy: "0.10", want: 1},
		{name: "always below", apy: "0.01", want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := storage.DefaultState()
			fired := 0
			for i := 0; i < 10; i++ {
				d := Evaluate(testRule(), snapshot(tc.apy), state, testNow.Add(time.Duration(i)*time.Minute))
				if d.Notify {
					fired++
					if i != 0 {
						t.Fatalf("只应在第一次跨越时告警, 第 %d 次也触发了", i)
					}
				}
				state = d.State
			}
			if fired != tc.want {
				t.Fatalf("期望告警 %d 次, 实际 %d", tc.want, fired)
			}
		})
	}
}

func TestEvaluateBelowNeverNotifiesFromBelow(t *testing.T) {
	for _, apy := range []string{"0", "0.01", "0.0699999"} {
		d := Evaluate(testRule(), snapshot(apy), storage.AlertState{WasAbove: false}, testNow)
		if d.Notify {
			t.Fatalf("apy=%s 低于阈值且此前也低于阈值, 不应告警", apy)
		}
	}
}

func TestRenderMessageContents(t *testing.T) {
	msg := RenderMessage(DirectionAbove, testRule(), snapshot("0.08125"), testNow)

	for _, want := range []string{
		"Market: 0xmarket",
		"Chain: 1",
		"Borrow: USDC (0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48)",
		"Collateral: wstETH (0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0)",
		"Current APY: 8.13%",
		"Threshold: 7.00%",
		"Utilization: 91.23%",
		"Checked at: 2026-10-16T08:30:00Z UTC",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, msg)
		}
	}
}

func TestRenderMessageWithoutCollateral(t *testing.T) {
	snap := snapshot("0.08")
	snap.Collateral = fetcher.Asset{}

	msg := RenderMessage(DirectionBelow, testRule(), snap, testNow)
	if !strings.Contains(msg, "Collateral: -\n") {
		t.Fatalf("无抵押资产时应显示 -:\n%s", msg)
	}
}

func TestRenderMessageHeaderFollowsDirection(t *testing.T) {
	cases := map[Direction]string{
		DirectionAbove: "🚨 Borrow APY crossed above 7.00%\n",
		DirectionBelow: "✅ Borrow APY fell back below 7.00%\n",
	}
	for direction, header := range cases {
		msg := RenderMessage(direction, testRule(), snapshot("0.07"), testNow)
		if !strings.HasPrefix(msg, header) {
			t.Fatalf("方向 %q 的消息标题应为 %q:\n%s", direction, header, msg)
		}
		if strings.Count(msg, "\n") != 8 {
			t.Fatalf("消息应为标题加 8 行明细:\n%s", msg)
		}
	}
}
