package plugin

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// EmailPluginName 邮件插件名称
const EmailPluginName = "email"

// sendMailFunc 与smtp.SendMail同签名，便于替换
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailPlugin 执行结果邮件通知插件（对外导出）
type EmailPlugin struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	enabled  bool
	sendMail sendMailFunc
}

// NewEmailPlugin 创建邮件通知插件（对外导出）
func NewEmailPlugin() *EmailPlugin {
	return &EmailPlugin{sendMail: smtp.SendMail}
}

// Name 插件名称（实现Plugin接口）
func (e *EmailPlugin) Name() string {
	return EmailPluginName
}

// Init 初始化插件（实现Plugin接口）
// 参数: smtp_host、smtp_port（默认25）、username、password、from、to（逗号分隔）
func (e *EmailPlugin) Init(params map[string]string) error {
	e.smtpHost = params["smtp_host"]
	if e.smtpHost == "" {
		return fmt.Errorf("smtp_host参数不能为空")
	}

	e.smtpPort = 25
	if portStr := params["smtp_port"]; portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return fmt.Errorf("smtp_port参数格式错误: %q", portStr)
		}
		e.smtpPort = port
	}

	e.username = params["username"]
	e.password = params["password"]

	e.from = params["from"]
	if e.from == "" {
		return fmt.Errorf("from参数不能为空")
	}

	e.to = e.to[:0]
	for _, addr := range strings.Split(params["to"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			e.to = append(e.to, addr)
		}
	}
	if len(e.to) == 0 {
		return fmt.Errorf("to参数不能为空")
	}

	e.enabled = true
	logger.L().Infof("✅ [EmailPlugin] 初始化完成: SMTP=%s:%d, From=%s, To=%v", e.smtpHost, e.smtpPort, e.from, e.to)
	return nil
}

// Execute 发送邮件（实现Plugin接口）
func (e *EmailPlugin) Execute(data interface{}) error {
	if !e.enabled {
		return fmt.Errorf("邮件插件未初始化")
	}
	pluginData, ok := data.(PluginData)
	if !ok {
		return fmt.Errorf("插件数据类型错误: %T", data)
	}

	subject := buildSubject(pluginData)
	msg := e.buildMessage(subject, buildBody(pluginData))
	if err := e.send(msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	logger.L().Infof("✅ [EmailPlugin] 邮件发送成功: Event=%s, Subject=%s", pluginData.Event, subject)
	return nil
}

func buildSubject(data PluginData) string {
	name := data.WorkflowName
	if name == "" {
		name = data.WorkflowID
	}
	switch data.Event {
	case EventExecutionStarted:
		return fmt.Sprintf("[执行开始] %s - %s", name, data.ExecutionID)
	case EventExecutionSucceeded:
		return fmt.Sprintf("[执行成功] %s - %s", name, data.ExecutionID)
	case EventExecutionFailed:
		return fmt.Sprintf("[执行失败] %s - %s", name, data.ExecutionID)
	case EventExecutionCancelled:
		return fmt.Sprintf("[执行取消] %s - %s", name, data.ExecutionID)
	case EventOrchestrationCompleted:
		return fmt.Sprintf("[编排结束] %s - %s", name, data.Status)
	default:
		return fmt.Sprintf("[系统通知] %s", data.Event)
	}
}

func buildBody(data PluginData) string {
	var body strings.Builder
	fmt.Fprintf(&body, "事件类型: %s\n", data.Event)
	fmt.Fprintf(&body, "状态: %s\n", data.Status)
	if data.WorkflowID != "" {
		fmt.Fprintf(&body, "工作流: %s (%s)\n", data.WorkflowName, data.WorkflowID)
	}
	if data.ExecutionID != "" {
		fmt.Fprintf(&body, "执行ID: %s\n", data.ExecutionID)
		fmt.Fprintf(&body, "处理行数: %d, 失败行数: %d\n", data.RowsProcessed, data.RowsFailed)
	}
	if data.StartedAt != nil {
		fmt.Fprintf(&body, "开始时间: %s\n", data.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if data.FinishedAt != nil {
		fmt.Fprintf(&body, "结束时间: %s\n", data.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if data.Error != "" {
		fmt.Fprintf(&body, "错误信息: %s\n", data.Error)
	}
	if len(data.Data) > 0 {
		body.WriteString("\n详细信息:\n")
		for k, v := range data.Data {
			fmt.Fprintf(&body, "  %s: %v\n", k, v)
		}
	}
	return body.String()
}

func (e *EmailPlugin) send(msg string) error {
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)
	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
		// 465端口为隐式TLS
		if e.smtpPort == 465 {
			return e.sendTLS(addr, auth, msg)
		}
	}
	return e.sendMail(addr, auth, e.from, e.to, []byte(msg))
}

func (e *EmailPlugin) sendTLS(addr string, auth smtp.Auth, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.smtpHost})
	if err != nil {
		return fmt.Errorf("TLS连接失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP认证失败: %w", err)
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, to := range e.to {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("设置收件人失败: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取数据写入器失败: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("关闭数据写入器失败: %w", err)
	}
	return client.Quit()
}

func (e *EmailPlugin) buildMessage(subject, body string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}
