package camera

import (
	"context"
	"errors"
	"strings"
	"testing"

	"utsushi/internal/logbook"
)

// TestChainForegrounderOrder は戦略が順に試され、成功で打ち切られることをテストする
func TestChainForegrounderOrder(t *testing.T) {
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	var order []string
	chain := NewChainForegrounder(log,
		ForegroundStrategy{
			Name: "first",
			Push: func(context.Context) error {
				order = append(order, "first")
				return errors.New("失敗する戦略")
			},
		},
		ForegroundStrategy{
			Name: "second",
			Push: func(context.Context) error {
				order = append(order, "second")
				return nil
			},
		},
		ForegroundStrategy{
			Name: "third",
			Push: func(context.Context) error {
				order = append(order, "third")
				return nil
			},
		},
	)

	chain.PushToForeground(context.Background())

	// 成功した戦略の後は試されないこと
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("戦略の実行順が不正: %v", order)
	}

	body := log.Body()
	if !strings.Contains(body, "前面化に失敗 (first)") {
		t.Error("失敗した戦略のログがありません")
	}
	if !strings.Contains(body, "前面化に成功 (second)") {
		t.Error("成功した戦略のログがありません")
	}
}

// TestChainForegrounderAllFail は全戦略が失敗しても致命的にならないことをテストする
func TestChainForegrounderAllFail(t *testing.T) {
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	chain := NewChainForegrounder(log,
		ForegroundStrategy{
			Name: "broken",
			Push: func(context.Context) error { return errors.New("常に失敗") },
		},
	)

	// パニックせずに戻ること
	chain.PushToForeground(context.Background())

	if !strings.Contains(log.Body(), "全ての前面化手段が失敗しました") {
		t.Error("全戦略失敗のログがありません")
	}
}

// TestChainForegrounderEmpty は戦略未登録でも安全に動くことをテストする
func TestChainForegrounderEmpty(t *testing.T) {
	log, err := logbook.New("", "")
	if err != nil {
		t.Fatalf("ログの作成に失敗しました: %v", err)
	}

	chain := NewChainForegrounder(log)
	chain.PushToForeground(context.Background())

	if !strings.Contains(log.Body(), "前面化の手段が登録されていません") {
		t.Error("スキップのログがありません")
	}
}
