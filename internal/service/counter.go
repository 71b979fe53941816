package service

import (
	"time"

	"go.uber.org/zap"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/monitoring"
)

// CounterService 维护账号的未读计数缓存。
//
// 计数是派生数据，唯一的事实来源是消息表；Recount 在账号级排他锁下
// 重新统计活跃未读副本并回写，保证并发写入方互相串行。
type CounterService struct {
	store   domain.Store
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewCounterService 创建未读计数服务。metrics 可为 nil。
func NewCounterService(store domain.Store, metrics *monitoring.Metrics, log *zap.Logger) *CounterService {
	return &CounterService{
		store:   store,
		metrics: metrics,
		log:     log,
	}
}

// Recount 重算并回写指定账号的未读计数，返回最新值。
func (s *CounterService) Recount(accountID string) (int, error) {
	var count int
	err := s.store.WithAccountLock(accountID, func(tx domain.Store) error {
		return s.recountLocked(tx, accountID, &count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RecountIn 在已持有锁的事务内重算未读计数。
//
// 投递事务已经对目标账号串行化，直接在同一事务内重算可以避免
// 再次加锁，同时让计数回写与消息写入一起提交或一起回滚。
func (s *CounterService) RecountIn(tx domain.Store, accountID string) (int, error) {
	var count int
	if err := s.recountLocked(tx, accountID, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *CounterService) recountLocked(tx domain.Store, accountID string, out *int) error {
	start := time.Now()

	count, err := tx.CountActiveUnread(accountID)
	if err != nil {
		return err
	}
	if err := tx.SetUnreadCount(accountID, count); err != nil {
		return err
	}
	*out = count

	if s.metrics != nil {
		s.metrics.RecountsTotal.Inc()
		s.metrics.RecountDuration.Observe(time.Since(start).Seconds())
	}
	s.log.Debug("未读计数已重算",
		zap.String("accountId", accountID),
		zap.Int("count", count),
	)
	return nil
}
