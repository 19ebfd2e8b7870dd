package notify

import (
	"fmt"
	"strings"

	"github.com/fleetdns/zonekeeper/pkg/config"
	"github.com/fleetdns/zonekeeper/pkg/events"
)

// Format renders an event as a Telegram HTML message. The second return
// is false when the event's category is disabled or the event has no
// message form.
func Format(ev *events.Event, toggles config.NotifyConfig) (string, bool) {
	switch ev.Type {
	case events.EventServiceStarted:
		return "🚀 <b>DNS monitor started</b>", true

	case events.EventServiceStopped:
		return "🛑 <b>DNS monitor stopped</b>", true

	case events.EventNodeBecameHealthy:
		if !toggles.NotifyNodeChanges() {
			return "", false
		}
		p := ev.Payload.(events.NodeTransition)
		return fmt.Sprintf("✅ <b>Node online</b>\n%s (<code>%s</code>)\n%s", p.Name, p.Address, fleetLine(p)), true

	case events.EventNodeBecameUnhealthy:
		if !toggles.NotifyNodeChanges() {
			return "", false
		}
		p := ev.Payload.(events.NodeTransition)
		return fmt.Sprintf("❌ <b>Node offline</b>\n%s (<code>%s</code>)\nReason: %s\n%s",
			p.Name, p.Address, p.Reason, fleetLine(p)), true

	case events.EventNodeThrottled:
		if !toggles.NotifyNodeChanges() {
			return "", false
		}
		p := ev.Payload.(events.LoadChange)
		return fmt.Sprintf("⚡ <b>Node throttled</b>\n%s (<code>%s</code>) on %s\n%d users ≥ %d limit",
			p.Name, p.Address, p.Domain, p.Users, p.Threshold), true

	case events.EventNodeRestored:
		if !toggles.NotifyNodeChanges() {
			return "", false
		}
		p := ev.Payload.(events.LoadChange)
		return fmt.Sprintf("♻️ <b>Node restored</b>\n%s (<code>%s</code>) on %s\n%d users ≤ %d limit",
			p.Name, p.Address, p.Domain, p.Users, p.Threshold), true

	case events.EventDNSRecordAdded:
		if !toggles.NotifyDNSChanges() {
			return "", false
		}
		p := ev.Payload.(events.DNSChange)
		return fmt.Sprintf("➕ <b>DNS record added</b>\n%s → <code>%s</code>", p.Domain, p.IP), true

	case events.EventDNSRecordRemoved:
		if !toggles.NotifyDNSChanges() {
			return "", false
		}
		p := ev.Payload.(events.DNSChange)
		return fmt.Sprintf("➖ <b>DNS record removed</b>\n%s → <code>%s</code>", p.Domain, p.IP), true

	case events.EventDNSOperationError:
		if !toggles.NotifyErrors() {
			return "", false
		}
		p := ev.Payload.(events.DNSError)
		return fmt.Sprintf("⚠️ <b>DNS %s failed</b>\n%s → <code>%s</code>\n<code>%s</code>",
			p.Action, p.Domain, p.IP, p.Err), true

	case events.EventAllNodesDown:
		if !toggles.NotifyCritical() {
			return "", false
		}
		p := ev.Payload.(events.FleetDown)
		return fmt.Sprintf("🚨 <b>ALL NODES DOWN</b>\n%d of %d nodes unreachable:\n<code>%s</code>",
			len(p.Affected), p.Total, strings.Join(p.Affected, "\n")), true
	}

	return "", false
}

func fleetLine(p events.NodeTransition) string {
	return fmt.Sprintf("Fleet: %d/%d online, %d disabled", p.OnlineCount, p.TotalCount, p.DisabledCount)
}
