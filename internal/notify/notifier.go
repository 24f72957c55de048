// Package notify sends best-effort receipts for committed transactions over
// SNS and SES. Failures are logged and never surface into the turn.
package notify

import (
	"context"
	"fmt"
	"strings"

	"shop-assistant/internal/common/aws"
	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// SNSPublisher publishes a plain-text message to a topic.
type SNSPublisher interface {
	PublishText(ctx context.Context, topicARN, subject, body string) error
}

// SESSender sends a plain-text email.
type SESSender interface {
	SendPlainEmail(ctx context.Context, from, to, subject, body string) error
}

// Notifier fans a transaction receipt out to the configured channels.
type Notifier struct {
	sns    SNSPublisher
	ses    SESSender
	config config.NotificationConfig
	logger logger.Logger
}

// New builds a Notifier from config, dialing the AWS clients for whichever
// channels are configured.
func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{config: cfg, logger: log}
	if !cfg.Enabled {
		return n, nil
	}

	if cfg.SNSTopicARN != "" {
		client, err := aws.NewSNSClient(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		n.sns = client
	}

	if cfg.EmailFrom != "" && cfg.EmailTo != "" {
		client, err := aws.NewSESClient(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		n.ses = client
	}

	return n, nil
}

const receiptSubject = "新交易记账"

// SendReceipt publishes the receipt on every configured channel. Errors are
// logged, never returned.
func (n *Notifier) SendReceipt(ctx context.Context, txn *models.Transaction) {
	if txn == nil {
		return
	}
	body := formatReceipt(txn)

	if n.sns != nil {
		if err := n.sns.PublishText(ctx, n.config.SNSTopicARN, receiptSubject, body); err != nil {
			n.logger.Warn("receipt publish failed", map[string]interface{}{
				"channel":       "sns",
				"transactionId": txn.ID,
				"error":         err.Error(),
			})
		}
	}

	if n.ses != nil {
		if err := n.ses.SendPlainEmail(ctx, n.config.EmailFrom, n.config.EmailTo, receiptSubject, body); err != nil {
			n.logger.Warn("receipt email failed", map[string]interface{}{
				"channel":       "ses",
				"transactionId": txn.ID,
				"error":         err.Error(),
			})
		}
	}
}

// formatReceipt renders the plain-text receipt body.
func formatReceipt(txn *models.Transaction) string {
	var b strings.Builder

	if txn.PartnerName != "" {
		fmt.Fprintf(&b, "客户: %s\n", txn.PartnerName)
	}
	for _, item := range txn.Items {
		fmt.Fprintf(&b, "%s x%s%s @%.2f = %.2f\n",
			item.ProductName, trimFloat(item.Quantity), item.Unit, item.UnitPrice, item.Subtotal)
	}
	fmt.Fprintf(&b, "合计: %.2f 元\n", txn.Total)
	if !txn.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "时间: %s\n", txn.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
