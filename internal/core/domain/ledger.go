package domain

import (
	"sort"
	"strconv"
	"time"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryTypeSent     EntryType = "SENT"
	EntryTypeReceived EntryType = "RECEIVED"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	return t == EntryTypeSent || t == EntryTypeReceived
}

// LedgerEntry is the local record of value moving out of (SENT) or into
// (RECEIVED) the wallet. Type, amount, timestamp and counterparty are
// immutable once appended.
type LedgerEntry struct {
	ID           int64         `json:"id"`
	VoucherID    string        `json:"voucher_id,omitempty"`
	Type         EntryType     `json:"type"`
	Amount       Amount        `json:"amount"`
	Timestamp    time.Time     `json:"timestamp"`
	Details      string        `json:"details"`
	Counterparty string        `json:"counterparty"`
	Status       VoucherStatus `json:"status"`
	Signature    string        `json:"-"` // base64url voucher signature
	Synced       bool          `json:"synced"`
}

// SignedAmount is the entry's contribution to the balance.
func (e LedgerEntry) SignedAmount() Amount {
	if e.Type == EntryTypeSent {
		return -e.Amount
	}
	return e.Amount
}

// RemoteKey is the stable identifier of the entry's remote mirror record:
// the voucher ID, or TYPE:timestampMillis:counterparty without one.
func (e LedgerEntry) RemoteKey() string {
	if e.VoucherID != "" {
		return e.VoucherID
	}
	return string(e.Type) + ":" + strconv.FormatInt(e.Timestamp.UnixMilli(), 10) + ":" + e.Counterparty
}

// IsCancellable reports whether the issuing side may still cancel the voucher.
func (e LedgerEntry) IsCancellable() bool {
	return e.Type == EntryTypeSent && e.Status == VoucherStatusIssued && !e.Synced
}

// Balance derives the wallet balance: sum(RECEIVED) - sum(SENT).
func Balance(entries []LedgerEntry) Amount {
	var total Amount
	for _, e := range entries {
		total += e.SignedAmount()
	}
	return total
}

// SortNewestFirst orders entries by timestamp descending, then ID descending.
func SortNewestFirst(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})
}

// SortOldestFirst orders entries by timestamp ascending, then ID ascending.
func SortOldestFirst(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
}
