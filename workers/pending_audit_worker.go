package workers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"crew-registry-system/models"
	"crew-registry-system/services"
)

// PendingAuditWorker periodically scans the registry for Pending rows whose
// token has already expired; registrations that were started but never
// redeemed. The worker is strictly read-only: orphaned rows are reported to
// the admin channel, never regressed or deleted (status only moves forward,
// and passive expiry is the agreed cleanup).
type PendingAuditWorker struct {
	Store    services.RecordStore
	Discord  services.DiscordAPI
	Channel  string // admin channel id; empty disables reporting
	Interval time.Duration
	Now      func() time.Time

	reported map[string]bool // row ids already reported
}

func NewPendingAuditWorker(store services.RecordStore, discord services.DiscordAPI, adminChannelID string) *PendingAuditWorker {
	return &PendingAuditWorker{
		Store:    store,
		Discord:  discord,
		Channel:  adminChannelID,
		Interval: 1 * time.Hour,
		Now:      time.Now,
		reported: make(map[string]bool),
	}
}

// Run polls until the context is canceled.
func (w *PendingAuditWorker) Run(ctx context.Context) {
	log.Println("🔁 Starting pending-registration audit worker…")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Pending-registration audit worker stopped")
			return
		case <-ticker.C:
			if err := w.auditOnce(ctx); err != nil {
				log.Printf("❌ [AUDIT] Audit pass failed: %v", err)
			}
		}
	}
}

func (w *PendingAuditWorker) auditOnce(ctx context.Context) error {
	rows, err := w.Store.QueryRows(ctx, models.ColStatus, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to query pending rows: %w", err)
	}

	cutoff := w.Now().UTC().Add(-models.TokenTTL)
	var orphans []string
	for _, row := range rows {
		if w.reported[row.ID] {
			continue
		}
		idNumber, _ := row.Values[models.ColIDNumber].(string)
		issuedRaw, _ := row.Values[models.ColTokenIssued].(string)
		issued, err := time.Parse(time.RFC3339, strings.TrimSpace(issuedRaw))
		if err != nil {
			// A Pending row without a parseable issue time is itself worth
			// flagging, since it can never expire on its own.
			log.Printf("⚠️ [AUDIT] Pending row %s (%s) has unparseable token timestamp %q", row.ID, idNumber, issuedRaw)
			continue
		}
		if issued.Before(cutoff) {
			orphans = append(orphans, idNumber)
			w.reported[row.ID] = true
		}
	}

	if len(orphans) == 0 {
		log.Printf("✅ [AUDIT] %d pending row(s) checked, no new orphans", len(rows))
		return nil
	}

	log.Printf("📋 [AUDIT] %d orphaned pending registration(s): %v", len(orphans), orphans)
	if w.Channel != "" {
		msg := fmt.Sprintf("📋 Registry audit: %d registration(s) expired unredeemed: %s",
			len(orphans), strings.Join(orphans, ", "))
		if _, err := w.Discord.ChannelMessageSend(w.Channel, msg); err != nil {
			log.Printf("⚠️ [AUDIT] Failed to post audit report: %v", err)
		}
	}
	return nil
}
