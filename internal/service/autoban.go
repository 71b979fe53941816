package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"privmail/backend/internal/config"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/monitoring"
)

// AutobanService 实现自动反垃圾封禁策略。
//
// 证据口径：统计窗口内该账号发出的、被判为垃圾的收件人副本覆盖的
// 不同收件人数量。阈值按收件人去重，向同一人重复发垃圾只计一次。
type AutobanService struct {
	cfg     config.AutobanConfig
	metrics *monitoring.Metrics
	log     *zap.Logger

	// now 可注入的时钟，测试用
	now func() time.Time
}

// NewAutobanService 创建自动封禁服务。metrics 可为 nil。
func NewAutobanService(cfg config.AutobanConfig, metrics *monitoring.Metrics, log *zap.Logger) *AutobanService {
	return &AutobanService{
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// IsSpammer 判断账号当前是否满足自动封禁条件。
//
// 金牌账号无条件豁免；其余账号在窗口内垃圾副本覆盖到的不同收件人
// 数量达到阈值即命中。
func (s *AutobanService) IsSpammer(tx domain.Store, sender *domain.Account) (bool, error) {
	if sender.IsGold {
		return false, nil
	}

	since := s.now().Add(-s.cfg.Window)
	count, err := tx.CountDistinctSpamRecipients(sender.ID, since)
	if err != nil {
		return false, fmt.Errorf("count spam recipients: %w", err)
	}
	return count >= s.cfg.Threshold, nil
}

// BanSpammer 以系统账号身份对垃圾发送者签发临时封禁。
//
// 已有生效中的封禁时幂等跳过，避免窗口内重复触发造成封禁叠加。
func (s *AutobanService) BanSpammer(tx domain.Store, sender *domain.Account) error {
	now := s.now()

	active, err := tx.HasActiveBan(sender.ID, now)
	if err != nil {
		return fmt.Errorf("check active ban: %w", err)
	}
	if active {
		return nil
	}

	system, err := tx.GetAccountByName(domain.SystemAccountName)
	if err != nil {
		return fmt.Errorf("load system account: %w", err)
	}

	ban := &domain.Ban{
		ID:        uuid.New().String(),
		AccountID: sender.ID,
		BannerID:  system.ID,
		Reason:    "Spammer.",
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, s.cfg.BanDays),
	}
	if err := tx.CreateBan(ban); err != nil {
		return fmt.Errorf("create ban: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AutobansIssued.Inc()
	}
	s.log.Warn("自动封禁已签发",
		zap.String("accountId", sender.ID),
		zap.String("accountName", sender.Name),
		zap.Time("expiresAt", ban.ExpiresAt),
	)
	return nil
}
