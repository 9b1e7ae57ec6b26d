package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/tlsutil"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrNotConfigured SMTP 账号未配置
var ErrNotConfigured = errors.New("smtp credentials are not configured")

// implicitTLSPort 465 端口握手前即建立 TLS（SMTPS）
const implicitTLSPort = 465

// Message 一封纯文本邮件
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer 发送邮件
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer 通过 go-mail 发送邮件。465 端口使用隐式 TLS，其他端口在服务端支持时升级 STARTTLS。
type SMTPMailer struct {
	cfg       config.SMTPConfig
	logger    *zap.Logger
	tlsConfig *tls.Config
	now       func() time.Time
}

// Option SMTPMailer 选项
type Option func(*SMTPMailer)

// WithTLSConfig 替换 TLS 配置（自建 CA 等场景）
func WithTLSConfig(c *tls.Config) Option {
	return func(m *SMTPMailer) { m.tlsConfig = c }
}

// New 创建 SMTP 发信器
func New(cfg config.SMTPConfig, logger *zap.Logger, opts ...Option) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	m := &SMTPMailer{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "mailer")),
		tlsConfig: tlsutil.ClientTLSConfig(cfg.Host),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send 建立连接、认证并投递一封邮件
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		return ErrNotConfigured
	}
	out, err := m.compose(msg)
	if err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if rcpts, err := out.GetRecipients(); err == nil && len(rcpts) > 0 {
		to = rcpts[0]
	}

	// ctx 取消时关闭连接，打断阻塞中的读写
	var stop func() bool
	defer func() {
		if stop != nil {
			stop()
		}
	}()
	client, err := m.client(func(conn net.Conn) {
		stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	})
	if err != nil {
		return err
	}

	m.logger.Info("sending email", zap.String("to", to))
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("send email to %s: %w", to, ctx.Err())
		}
		m.logger.Warn("email delivery failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	m.logger.Info("email sent", zap.String("to", to))
	return nil
}

// client 每次发送新建一个 go-mail 客户端；onConnect 在连接建立后回调
func (m *SMTPMailer) client(onConnect func(net.Conn)) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSConfig(m.tlsConfig),
		mail.WithDialContextFunc(m.dialer(onConnect)),
	}
	if m.cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	c, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return c, nil
}

// dialer 自定义拨号：465 端口直接 TLS，连接的读写截止时间不晚于超时
func (m *SMTPMailer) dialer(onConnect func(net.Conn)) mail.DialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := &net.Dialer{Timeout: m.cfg.Timeout}
		var (
			conn net.Conn
			err  error
		)
		if m.cfg.Port == implicitTLSPort {
			td := &tls.Dialer{NetDialer: d, Config: m.tlsConfig}
			conn, err = td.DialContext(ctx, network, addr)
			if err != nil {
				return nil, fmt.Errorf("dial smtps %s: %w", addr, err)
			}
		} else {
			conn, err = d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, fmt.Errorf("dial smtp %s: %w", addr, err)
			}
		}
		_ = conn.SetDeadline(m.now().Add(m.cfg.Timeout))
		if onConnect != nil {
			onConnect(conn)
		}
		return conn, nil
	}
}

// compose 生成纯文本报文，正文使用 quoted-printable
func (m *SMTPMailer) compose(msg Message) (*mail.Msg, error) {
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, errors.New("subject must not contain line breaks")
	}
	out := mail.NewMsg(mail.WithEncoding(mail.EncodingQP), mail.WithCharset(mail.CharsetUTF8))
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := out.To(strings.TrimSpace(msg.To)); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetDateWithValue(m.now())
	out.SetMessageIDWithValue(uuid.NewString() + "@" + domainOf(m.cfg.From))
	out.SetBodyString(mail.TypeTextPlain, strings.ReplaceAll(msg.Body, "\r\n", "\n"))
	return out, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.TrimRight(addr[i+1:], ">")
	}
	return "localhost"
}
