package camera

import (
	"context"
	"fmt"

	"utsushi/internal/logbook"
)

// ForegroundStrategy は撮影画面を前面へ出すための1つの手段
type ForegroundStrategy struct {
	Name string
	Push func(ctx context.Context) error
}

// Foregrounder は撮影前に撮影画面を前面へ出す（ベストエフォート）
// 失敗しても撮影は続行されるため、エラーは返さない
type Foregrounder interface {
	PushToForeground(ctx context.Context)
}

// ChainForegrounder は登録された戦略を順に試す実装
// 最初に成功した戦略で打ち切り、全て失敗してもログを残すだけで終わる
type ChainForegrounder struct {
	strategies []ForegroundStrategy
	log        *logbook.Log
}

// NewChainForegrounder は新しいChainForegrounderを作成する
func NewChainForegrounder(log *logbook.Log, strategies ...ForegroundStrategy) *ChainForegrounder {
	return &ChainForegrounder{
		strategies: strategies,
		log:        log,
	}
}

// PushToForeground は戦略を順に試す
func (f *ChainForegrounder) PushToForeground(ctx context.Context) {
	if len(f.strategies) == 0 {
		f.log.AddLine("前面化の手段が登録されていません（スキップ）")
		return
	}

	for _, s := range f.strategies {
		if err := s.Push(ctx); err != nil {
			f.log.AddLine(fmt.Sprintf("前面化に失敗 (%s): %v", s.Name, err))
			continue
		}
		f.log.AddLine(fmt.Sprintf("前面化に成功 (%s)", s.Name))
		return
	}

	f.log.AddLine("全ての前面化手段が失敗しました（撮影は継続します）")
}
