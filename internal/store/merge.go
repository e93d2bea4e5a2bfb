package store

import (
	"github.com/samber/lo"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// MergeReport counts the entries a merge actually added, per category.
type MergeReport struct {
	Subscribers  int
	Owners       int
	GateChannels int
	KnownChats   int
}

// mergeDocuments unions incoming into doc. Identifier sets are unioned by
// value, gate channels by derived key. Scalar settings keep the existing
// value unless the incoming document carries a non-zero one. User and coupon
// records are adopted only for keys the live store does not know yet; the
// live store wins on conflicts.
func mergeDocuments(doc, incoming *domain.Document) MergeReport {
	var report MergeReport

	doc.Subscribers, report.Subscribers = unionInt64(doc.Subscribers, incoming.Subscribers)
	doc.Owners, report.Owners = unionInt64(doc.Owners, incoming.Owners)
	doc.KnownChats, report.KnownChats = unionInt64(doc.KnownChats, incoming.KnownChats)

	existingKeys := lo.Map(doc.Force.Channels, func(ch domain.ChannelGateEntry, _ int) string {
		return ch.Key()
	})
	for _, ch := range incoming.Force.Channels {
		if ch.Key() == "" || lo.Contains(existingKeys, ch.Key()) {
			continue
		}
		doc.Force.Channels = append(doc.Force.Channels, ch)
		existingKeys = append(existingKeys, ch.Key())
		report.GateChannels++
	}

	for key, user := range incoming.Users {
		if _, ok := doc.Users[key]; !ok {
			doc.Users[key] = user
		}
	}
	for code, coupon := range incoming.Coupons {
		if _, ok := doc.Coupons[code]; !ok {
			doc.Coupons[code] = coupon
		}
	}

	if incoming.Force.CheckBtnText != "" && incoming.Force.CheckBtnText != domain.DefaultCheckButtonText {
		doc.Force.CheckBtnText = incoming.Force.CheckBtnText
	}
	// A parsed import knows whether its auto_backup section was present;
	// documents built in code fall back to a non-default-value heuristic.
	if incoming.HasExplicitAutoBackup() ||
		incoming.AutoBackup.Enabled ||
		incoming.AutoBackup.IntervalMinutes > domain.MinBackupIntervalMinutes {
		doc.AutoBackup = incoming.AutoBackup
	}

	return report
}

func unionInt64(existing, incoming []int64) ([]int64, int) {
	merged := lo.Union(existing, incoming)
	return merged, len(merged) - len(existing)
}
