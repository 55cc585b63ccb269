package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/kakeibo/internal/model"
)

// monthlyWindow は月別集計に含める過去の月数（当月を除く）。
const monthlyWindow = 5

// DashboardStats は所有者の全取引から合計・カテゴリ別・月別の集計を返す。
func (s *Service) DashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordStatsLatency(time.Since(start))
	}()

	since := monthlyWindowStart(s.now())

	// 1. カテゴリ別・月別の集計を並行に取得
	var (
		categoryTotals []model.CategoryTypeTotal
		monthlyTotals  []model.MonthlyTotal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.repo.CategoryTotals(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to aggregate category totals: %w", err)
		}
		categoryTotals = totals
		return nil
	})
	g.Go(func() error {
		totals, err := s.repo.MonthlyTotals(gctx, userID, since)
		if err != nil {
			return fmt.Errorf("failed to aggregate monthly totals: %w", err)
		}
		monthlyTotals = totals
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. 合計はカテゴリ別小計から導出する
	stats := &model.DashboardStats{
		TotalIncome:   decimal.Zero,
		TotalExpense:  decimal.Zero,
		CategoryStats: make(map[model.Category]model.CategoryStat),
		MonthlyData:   monthlyTotals,
	}
	for _, ct := range categoryTotals {
		cs, ok := stats.CategoryStats[ct.Category]
		if !ok {
			cs = model.CategoryStat{Income: decimal.Zero, Expense: decimal.Zero}
		}
		switch ct.Type {
		case model.TransactionTypeIncome:
			cs.Income = cs.Income.Add(ct.Total)
			stats.TotalIncome = stats.TotalIncome.Add(ct.Total)
		case model.TransactionTypeExpense:
			cs.Expense = cs.Expense.Add(ct.Total)
			stats.TotalExpense = stats.TotalExpense.Add(ct.Total)
		}
		stats.CategoryStats[ct.Category] = cs
	}
	stats.Balance = stats.TotalIncome.Sub(stats.TotalExpense)
	if stats.MonthlyData == nil {
		stats.MonthlyData = []model.MonthlyTotal{}
	}

	return stats, nil
}

// monthlyWindowStart はnowの属する月から5か月前の月初（UTC）を返す。
func monthlyWindowStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m-monthlyWindow, 1, 0, 0, 0, 0, time.UTC)
}
