package classifier

import (
	"fmt"
	"strings"

	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/models"
)

// Classification is derived from an event at read time and never persisted,
// so rule changes apply retroactively without a migration.
type Classification struct {
	Severity       enum.Severity       `json:"severity"`
	Category       enum.BounceCategory `json:"category,omitempty"`
	Icon           string              `json:"icon"`
	Interpretation string              `json:"interpretation"`
	Recommendation string              `json:"recommendation,omitempty"`
	RequiresAction bool                `json:"requiresAction"`
}

// Classify maps one delivery event to a severity, bounce category and
// human-readable interpretation. Pure, no I/O.
func Classify(event *models.DeliveryEvent) Classification {
	switch event.EventType {
	case enum.EventBounce:
		return classifyBounce(event)
	case enum.EventComplaint:
		return classifyComplaint(event)
	case enum.EventReject:
		return classifyReject(event)
	case enum.EventDeliveryDelay:
		return classifyDeliveryDelay(event)
	case enum.EventDelivery:
		return Classification{
			Severity:       enum.SeverityInfo,
			Icon:           "✅",
			Interpretation: "Message was delivered to the recipient's mail server",
		}
	case enum.EventSend:
		return Classification{
			Severity:       enum.SeverityInfo,
			Icon:           "📤",
			Interpretation: "Message was accepted by the provider for sending",
		}
	case enum.EventOpen:
		return Classification{
			Severity:       enum.SeverityInfo,
			Icon:           "👁",
			Interpretation: "Recipient opened the message",
		}
	case enum.EventClick:
		return Classification{
			Severity:       enum.SeverityInfo,
			Icon:           "🔗",
			Interpretation: "Recipient clicked a link in the message",
		}
	default:
		return Classification{
			Severity:       enum.SeverityInfo,
			Icon:           "ℹ️",
			Interpretation: fmt.Sprintf("Received event of type %s", event.EventType),
		}
	}
}

func classifyBounce(event *models.DeliveryEvent) Classification {
	bounceType := event.DetailString("bounceType")
	subType := event.DetailString("bounceSubType")

	switch bounceType {
	case "Permanent":
		c := Classification{
			Severity:       enum.SeverityCritical,
			Category:       enum.BounceHard,
			Icon:           "🚫",
			Recommendation: "Remove this address from your recipient lists",
			RequiresAction: true,
		}
		switch subType {
		case "NoEmail":
			c.Interpretation = "Hard bounce: the email address does not exist"
		case "Suppressed", "OnAccountSuppressionList":
			c.Interpretation = "Hard bounce: the address is on the provider's suppression list"
			c.Recommendation = "Address previously hard-bounced or complained; do not send to it again"
		default:
			c.Interpretation = "Hard bounce: the message was permanently rejected"
		}
		return c
	case "Transient":
		c := Classification{
			Severity: enum.SeverityWarning,
			Category: enum.BounceSoft,
			Icon:     "⚠️",
		}
		switch subType {
		case "MailboxFull":
			c.Interpretation = "Soft bounce: the recipient's mailbox is full"
		case "MessageTooLarge":
			c.Interpretation = "Soft bounce: the message exceeds the recipient's size limit"
			c.Recommendation = "Reduce attachment sizes and try again"
		case "ContentRejected":
			c.Interpretation = "Soft bounce: the message content was rejected by the receiving server"
			c.Recommendation = "Review the message content for spam-like patterns"
		case "AttachmentRejected":
			c.Interpretation = "Soft bounce: an attachment was rejected by the receiving server"
			c.Recommendation = "Remove or replace the rejected attachment type"
		case "ServiceUnavailable", "General":
			c.Interpretation = "Soft bounce: the receiving mail server is temporarily unavailable"
		case "DomainNotVerified":
			c.Interpretation = "Soft bounce: the sending domain could not be verified by the recipient"
			c.Recommendation = "Check the sending domain's DNS and authentication records"
		default:
			c.Interpretation = "Soft bounce: temporary delivery failure"
		}
		return c
	default:
		return Classification{
			Severity:       enum.SeverityInfo,
			Category:       enum.BounceUnknown,
			Icon:           "❓",
			Interpretation: "Bounce received without a recognized bounce type",
		}
	}
}

func classifyComplaint(event *models.DeliveryEvent) Classification {
	interpretation := "Recipient marked the message as spam"
	if count := event.DetailString("complainedRecipients"); count != "" {
		interpretation = fmt.Sprintf("Recipient marked the message as spam (%s recipient(s) complained)", count)
	}
	return Classification{
		Severity:       enum.SeverityCritical,
		Icon:           "🛑",
		Interpretation: interpretation,
		Recommendation: "Stop sending to this address immediately; repeated complaints damage sender reputation",
		RequiresAction: true,
	}
}

func classifyReject(event *models.DeliveryEvent) Classification {
	reason := event.DetailString("reason")
	lowered := strings.ToLower(reason)

	c := Classification{
		Severity:       enum.SeverityWarning,
		Icon:           "⛔",
		RequiresAction: true,
	}
	switch {
	case strings.Contains(lowered, "config"):
		c.Interpretation = "Message rejected before sending due to an account configuration problem"
		c.Recommendation = "Review sending identity and account configuration"
	case strings.Contains(lowered, "content"):
		c.Interpretation = "Message rejected before sending because its content was flagged"
		c.Recommendation = "Review the message content and try again"
	case strings.Contains(lowered, "reputation"):
		c.Interpretation = "Message rejected before sending due to sender reputation"
		c.Recommendation = "Check your sender reputation metrics and recent bounce/complaint rates"
	default:
		c.Interpretation = "Message rejected by the provider before sending"
		c.Recommendation = "Check the reject reason in the event details"
	}
	if reason != "" {
		c.Interpretation = fmt.Sprintf("%s: %s", c.Interpretation, reason)
	}
	return c
}

func classifyDeliveryDelay(event *models.DeliveryEvent) Classification {
	c := Classification{
		Severity: enum.SeverityInfo,
		Icon:     "⏳",
	}
	if event.DetailString("delayType") == "Temporary" {
		c.Interpretation = "Delivery temporarily delayed; the provider will keep retrying"
	} else {
		c.Interpretation = "Delivery is delayed"
	}
	return c
}
