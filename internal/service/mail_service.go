package service

import (
	"bytes"
	"codequest_backend/internal/config"
	"codequest_backend/internal/model"
	"codequest_backend/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReminderMessage 单封提醒邮件需要的全部上下文
type ReminderMessage struct {
	To              string
	RecipientName   string
	RecipientRole   model.ReminderRecipient
	CounterpartName string
	SessionTitle    string
	Topic           string
	SessionDate     time.Time
	DurationMinutes int
	JoinLink        string
	TimeUntil       string
}

// MailService 通过 Brevo 事务邮件 API 发信。
// 配置热更新时整体替换 conf，读写都持锁。
type MailService struct {
	mu     sync.RWMutex
	conf   config.MailConfig
	client *http.Client
}

func NewMailService(cfg *config.MailConfig) *MailService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MailService{
		conf:   *cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// UpdateConfig 配置热更新入口
func (s *MailService) UpdateConfig(cfg *config.MailConfig) {
	s.mu.Lock()
	s.conf = *cfg
	s.mu.Unlock()
}

type mailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type mailPayload struct {
	Sender      mailAddress   `json:"sender"`
	To          []mailAddress `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
}

func (s *MailService) send(ctx context.Context, to, name, subject, html string) error {
	s.mu.RLock()
	conf := s.conf
	s.mu.RUnlock()

	if conf.APIKey == "" {
		// 开发环境未配置发信时降级为日志
		logger.Log.Info("邮件服务未配置，跳过发送",
			zap.String("to", to),
			zap.String("subject", subject))
		return nil
	}

	payload := mailPayload{
		Sender:      mailAddress{Name: conf.SenderName, Email: conf.SenderEmail},
		To:          []mailAddress{{Name: name, Email: to}},
		Subject:     subject,
		HTMLContent: html,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", conf.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail api returned %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// SendInterviewReminder 发送面试前提醒（24 小时 / 1 小时两档）
func (s *MailService) SendInterviewReminder(ctx context.Context, msg ReminderMessage) error {
	var counterpartLabel string
	if msg.RecipientRole == model.RecipientInstructor {
		counterpartLabel = "学员"
	} else {
		counterpartLabel = "面试官"
	}

	subject := fmt.Sprintf("面试提醒：%s 将于 %s 后开始", msg.SessionTitle, msg.TimeUntil)
	html := fmt.Sprintf(`<h2>模拟面试提醒</h2>
<p>%s，你好：</p>
<p>你的模拟面试 <b>%s</b>（%s）将于 <b>%s</b> 开始，距现在约 %s。</p>
<ul>
  <li>%s：%s</li>
  <li>时长：%d 分钟</li>
</ul>
<p><a href="%s">点击进入面试房间</a></p>`,
		msg.RecipientName, msg.SessionTitle, msg.Topic,
		msg.SessionDate.Format("2006-01-02 15:04"), msg.TimeUntil,
		counterpartLabel, msg.CounterpartName,
		msg.DurationMinutes, msg.JoinLink)

	return s.send(ctx, msg.To, msg.RecipientName, subject, html)
}

// SendBookingConfirmed 预约确认通知
func (s *MailService) SendBookingConfirmed(ctx context.Context, booking *model.InterviewBooking, session *model.InterviewSession) error {
	if booking.Learner == nil {
		return nil
	}
	subject := fmt.Sprintf("预约成功：%s", session.Title)
	html := fmt.Sprintf(`<h2>预约成功</h2>
<p>%s，你好：</p>
<p>你已成功预约模拟面试 <b>%s</b>（%s），时间 <b>%s</b>，时长 %d 分钟。</p>
<p>支付金额：%.2f 元，参考号：%s</p>`,
		booking.Learner.DisplayName, session.Title, session.Topic,
		session.SessionDate.Format("2006-01-02 15:04"),
		session.DurationMinutes, booking.PaymentAmount, booking.PaymentRef)
	return s.send(ctx, booking.Learner.Email, booking.Learner.DisplayName, subject, html)
}

// SendSessionCancelled 场次取消通知，逐个发给受影响的学员
func (s *MailService) SendSessionCancelled(ctx context.Context, learner *model.User, session *model.InterviewSession, reason string) error {
	if reason == "" {
		reason = "讲师临时有事"
	}
	subject := fmt.Sprintf("场次取消：%s", session.Title)
	html := fmt.Sprintf(`<h2>面试场次已取消</h2>
<p>%s，你好：</p>
<p>你预约的模拟面试 <b>%s</b>（原定 %s）已被取消。</p>
<p>取消原因：%s</p>
<p>已支付的费用将原路退回。</p>`,
		learner.DisplayName, session.Title,
		session.SessionDate.Format("2006-01-02 15:04"), reason)
	return s.send(ctx, learner.Email, learner.DisplayName, subject, html)
}
