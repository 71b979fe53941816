package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/mailer"
	"privmail/backend/internal/monitoring"
	"privmail/backend/internal/pool"
	"privmail/backend/internal/spam"
)

// ErrSenderBanned 发件账号处于生效中的封禁，拒绝发送。
var ErrSenderBanned = errors.New("sender is banned")

// Pusher 向在线客户端推送新消息事件。由 websocket Hub 实现，可为 nil。
type Pusher interface {
	PushNewMessage(accountID string, message *domain.Message, unread int)
}

// SendInput 是一次逻辑发送的输入。
type SendInput struct {
	FromID         string
	ToID           string
	Title          string
	Body           string
	CreatorAddress string
}

// DeliveryService 实现双副本投递。
//
// 一次逻辑发送在单个存储事务内最多写入两份物理副本：
// 发件人副本始终已读、永不判垃圾；收件人副本经垃圾判定，
// 命中时触发自动封禁评估。收件人未读计数与副本写入同事务提交。
type DeliveryService struct {
	store      domain.Store
	classifier spam.Classifier
	counter    *CounterService
	autoban    *AutobanService
	mail       mailer.Mailer
	pusher     Pusher
	workers    *pool.WorkerPool
	metrics    *monitoring.Metrics
	log        *zap.Logger

	// now 可注入的时钟，测试用
	now func() time.Time
}

// NewDeliveryService 创建投递服务。pusher、workers、metrics 可为 nil。
func NewDeliveryService(
	store domain.Store,
	classifier spam.Classifier,
	counter *CounterService,
	autoban *AutobanService,
	mail mailer.Mailer,
	pusher Pusher,
	workers *pool.WorkerPool,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *DeliveryService {
	return &DeliveryService{
		store:      store,
		classifier: classifier,
		counter:    counter,
		autoban:    autoban,
		mail:       mail,
		pusher:     pusher,
		workers:    workers,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// Send 执行一次逻辑发送。
//
// 校验内容、拒绝被封禁的发件人，然后在一个事务内写入全部副本、
// 完成垃圾判定与自动封禁评估、重算收件人未读计数。事务内任一步
// 失败即整体回滚。提交成功后异步发送邮件提醒与推送，二者的失败
// 不影响发送结果。
func (s *DeliveryService) Send(input SendInput) (*domain.DeliveryResult, error) {
	if err := domain.ValidateContent(input.Title, input.Body); err != nil {
		s.countFailure("validation")
		return nil, err
	}

	sender, err := s.store.GetAccount(input.FromID)
	if err != nil {
		s.countFailure("sender_not_found")
		return nil, fmt.Errorf("load sender: %w", err)
	}

	banned, err := s.store.HasActiveBan(sender.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("check sender ban: %w", err)
	}
	if banned {
		s.countFailure("sender_banned")
		return nil, ErrSenderBanned
	}

	recipient, err := s.store.GetAccount(input.ToID)
	if err != nil {
		s.countFailure("recipient_not_found")
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	now := s.now()
	result := &domain.DeliveryResult{}
	var unread int

	err = s.store.WithTransaction(func(tx domain.Store) error {
		// 自发自收只有发件人副本，邮箱状态不变，无需锁收件方
		if sender.ID == recipient.ID {
			result.SenderCopy = s.newCopy(input, sender.ID, now, true, false)
			return tx.SaveMessage(result.SenderCopy)
		}

		return tx.WithAccountLock(recipient.ID, func(ltx domain.Store) error {
			recipientCopy := s.newCopy(input, recipient.ID, now, false, false)
			recipientCopy.IsSpam = s.classifier.Classify(recipientCopy)
			if err := ltx.SaveMessage(recipientCopy); err != nil {
				return err
			}

			senderCopy := s.newCopy(input, sender.ID, now, true, false)
			if err := ltx.SaveMessage(senderCopy); err != nil {
				return err
			}

			if recipientCopy.IsSpam {
				hit, err := s.autoban.IsSpammer(ltx, sender)
				if err != nil {
					return err
				}
				if hit {
					if err := s.autoban.BanSpammer(ltx, sender); err != nil {
						return err
					}
				}
			}

			count, err := s.counter.RecountIn(ltx, recipient.ID)
			if err != nil {
				return err
			}
			unread = count

			result.SenderCopy = senderCopy
			result.RecipientCopy = recipientCopy
			return nil
		})
	})
	if err != nil {
		s.countFailure("storage")
		return nil, err
	}

	s.afterCommit(sender, recipient, result.RecipientCopy, unread)
	return result, nil
}

// CreateAutomated 以系统账号身份投递自动消息。
//
// 只产生收件人副本，不做垃圾判定与封禁评估。
func (s *DeliveryService) CreateAutomated(toID, title, body string) (*domain.Message, error) {
	if err := domain.ValidateContent(title, body); err != nil {
		return nil, err
	}

	system, err := s.store.GetAccountByName(domain.SystemAccountName)
	if err != nil {
		return nil, fmt.Errorf("load system account: %w", err)
	}
	recipient, err := s.store.GetAccount(toID)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	input := SendInput{FromID: system.ID, ToID: recipient.ID, Title: title, Body: body}
	now := s.now()
	var msg *domain.Message
	var unread int

	err = s.store.WithTransaction(func(tx domain.Store) error {
		return tx.WithAccountLock(recipient.ID, func(ltx domain.Store) error {
			msg = s.newCopy(input, recipient.ID, now, false, false)
			if err := ltx.SaveMessage(msg); err != nil {
				return err
			}
			count, err := s.counter.RecountIn(ltx, recipient.ID)
			if err != nil {
				return err
			}
			unread = count
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(system, recipient, msg, unread)
	return msg, nil
}

// BuildResponse 基于已有副本生成回复或转发草稿。
//
// 标题补全 "Re: " 前缀（已有前缀不重复），正文引用原文并署上原发件人
// 名称。回复时收件人预填原发件人，转发时留空由调用方指定。
func (s *DeliveryService) BuildResponse(message *domain.Message, forward bool) (*domain.Draft, error) {
	original, err := s.store.GetAccount(message.FromID)
	if err != nil {
		return nil, fmt.Errorf("load original sender: %w", err)
	}

	title := message.Title
	if !strings.HasPrefix(title, "Re:") {
		title = "Re: " + title
	}

	draft := &domain.Draft{
		Title: title,
		Body:  fmt.Sprintf("[quote]\n%s said:\n\n%s\n[/quote]\n\n", original.Name, message.Body),
	}
	if !forward {
		draft.ToID = message.FromID
	}
	return draft, nil
}

// newCopy 构造一份物理副本。read 为真时副本生成即已读。
func (s *DeliveryService) newCopy(input SendInput, ownerID string, at time.Time, read, isSpam bool) *domain.Message {
	return &domain.Message{
		ID:             uuid.New().String(),
		Title:          input.Title,
		Body:           input.Body,
		OwnerID:        ownerID,
		FromID:         input.FromID,
		ToID:           input.ToID,
		IsSpam:         isSpam,
		IsRead:         read,
		CreatedAt:      at,
		CreatorAddress: input.CreatorAddress,
	}
}

// afterCommit 在事务提交后执行尽力而为的通知与推送。
func (s *DeliveryService) afterCommit(sender, recipient *domain.Account, recipientCopy *domain.Message, unread int) {
	if s.metrics != nil {
		s.metrics.MessagesDelivered.Inc()
		if recipientCopy != nil && recipientCopy.IsSpam {
			s.metrics.MessagesSpam.Inc()
		}
	}

	// 垃圾副本不提醒、不推送
	if recipientCopy == nil || recipientCopy.IsSpam {
		return
	}

	if s.pusher != nil {
		s.pusher.PushNewMessage(recipient.ID, recipientCopy, unread)
	}

	if s.workers == nil || !recipient.WantsEmailNotification() {
		return
	}
	notification := &mailer.Notification{
		To:        recipient.Email,
		ToName:    recipient.Name,
		FromName:  sender.Name,
		Title:     recipientCopy.Title,
		MessageID: recipientCopy.ID,
	}
	s.workers.Submit(func() {
		if err := s.mail.SendNotification(notification); err != nil {
			if s.metrics != nil {
				s.metrics.NotificationsFailed.Inc()
			}
			s.log.Warn("邮件提醒发送失败",
				zap.String("to", notification.To),
				zap.Error(err),
			)
			return
		}
		if s.metrics != nil {
			s.metrics.NotificationsSent.Inc()
		}
	})
}

// countFailure 记录发送失败的原因指标。
func (s *DeliveryService) countFailure(reason string) {
	if s.metrics != nil {
		s.metrics.DeliveryFailures.WithLabelValues(reason).Inc()
	}
}
