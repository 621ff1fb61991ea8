package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Remote mirror collections.
const (
	CollectionVouchers     = "vouchers"
	CollectionTransactions = "transactions"
)

// Remote mirror field names. Sender-side and recipient-side pushes write
// disjoint status/time fields so a merge from one side never clobbers the other.
const (
	RemoteFieldSenderUID       = "sender_uid"
	RemoteFieldRecipientUID    = "recipient_uid"
	RemoteFieldAmountMinor     = "amount_minor"
	RemoteFieldDetails         = "details"
	RemoteFieldIssuedAt        = "issued_at"
	RemoteFieldReceivedAt      = "received_at"
	RemoteFieldSenderStatus    = "sender_status"
	RemoteFieldRecipientStatus = "recipient_status"
	RemoteFieldOwnerUID        = "owner_uid"
	RemoteFieldType            = "type"
	RemoteFieldTimestamp       = "timestamp"
	RemoteFieldCounterparty    = "counterparty"
)

// MergePolicy selects how an upsert treats fields already present remotely.
type MergePolicy int

const (
	// MergeFields updates only the given fields and preserves the rest.
	MergeFields MergePolicy = iota
	// Replace overwrites the whole record.
	Replace
)

// RemoteRecord is a server-side mirror of a voucher or transaction.
type RemoteRecord struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	ServerTime time.Time      `json:"server_time"`
}

// RemoteFilter matches records where any of the listed fields equals its value.
type RemoteFilter struct {
	AnyOf map[string]string
}

// RemoteCollection returns the mirror collection an entry is pushed to.
func RemoteCollection(e LedgerEntry) string {
	if e.VoucherID != "" {
		return CollectionVouchers
	}
	return CollectionTransactions
}

// RemoteFields builds the merge fields for pushing e on behalf of owner.
func RemoteFields(e LedgerEntry, owner string) map[string]any {
	ts := e.Timestamp.UnixMilli()
	if e.VoucherID == "" {
		return map[string]any{
			RemoteFieldOwnerUID:     owner,
			RemoteFieldType:         string(e.Type),
			RemoteFieldAmountMinor:  e.Amount.MinorUnits(),
			RemoteFieldTimestamp:    ts,
			RemoteFieldCounterparty: e.Counterparty,
			RemoteFieldDetails:      e.Details,
		}
	}

	if e.Type == EntryTypeSent {
		return map[string]any{
			RemoteFieldSenderUID:    owner,
			RemoteFieldAmountMinor:  e.Amount.MinorUnits(),
			RemoteFieldDetails:      e.Details,
			RemoteFieldIssuedAt:     ts,
			RemoteFieldSenderStatus: string(e.Status),
		}
	}
	return map[string]any{
		RemoteFieldRecipientUID:    owner,
		RemoteFieldSenderUID:       e.Counterparty,
		RemoteFieldAmountMinor:     e.Amount.MinorUnits(),
		RemoteFieldDetails:         e.Details,
		RemoteFieldReceivedAt:      ts,
		RemoteFieldRecipientStatus: string(e.Status),
	}
}

// PartyFilter selects the records of a collection that concern uid.
func PartyFilter(collection, uid string) RemoteFilter {
	if collection == CollectionTransactions {
		return RemoteFilter{AnyOf: map[string]string{RemoteFieldOwnerUID: uid}}
	}
	return RemoteFilter{AnyOf: map[string]string{
		RemoteFieldSenderUID:    uid,
		RemoteFieldRecipientUID: uid,
	}}
}

// String returns a string field, or "".
func (r RemoteRecord) String(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Int returns an integral field. JSON-backed stores decode numbers as
// float64, BSON-backed stores as int32/int64.
func (r RemoteRecord) Int(field string) (int64, bool) {
	switch v := r.Fields[field].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// Status derives the voucher status from both sides' fields.
func (r RemoteRecord) Status() VoucherStatus {
	if r.String(RemoteFieldRecipientUID) != "" {
		return VoucherStatusRedeemed
	}
	if VoucherStatus(r.String(RemoteFieldSenderStatus)) == VoucherStatusCancelled {
		return VoucherStatusCancelled
	}
	return VoucherStatusIssued
}

// EntriesFor maps the record to the ledger entries it implies for owner.
// A voucher record yields a SENT entry when owner issued it and a RECEIVED
// entry when owner redeemed it. Malformed records yield nothing.
func (r RemoteRecord) EntriesFor(owner string) []LedgerEntry {
	amount, ok := r.Int(RemoteFieldAmountMinor)
	if !ok || amount <= 0 {
		return nil
	}

	if r.Collection == CollectionTransactions {
		typ := EntryType(r.String(RemoteFieldType))
		ts, ok := r.Int(RemoteFieldTimestamp)
		if r.String(RemoteFieldOwnerUID) != owner || !typ.Valid() || !ok {
			return nil
		}
		status := VoucherStatusIssued
		if typ == EntryTypeReceived {
			status = VoucherStatusRedeemed
		}
		return []LedgerEntry{{
			Type:         typ,
			Amount:       Amount(amount),
			Timestamp:    time.UnixMilli(ts),
			Details:      r.String(RemoteFieldDetails),
			Counterparty: r.String(RemoteFieldCounterparty),
			Status:       status,
			Synced:       true,
		}}
	}

	var out []LedgerEntry
	status := r.Status()
	issuedAt, hasIssued := r.Int(RemoteFieldIssuedAt)

	if r.String(RemoteFieldSenderUID) == owner && hasIssued {
		out = append(out, LedgerEntry{
			VoucherID:    r.ID,
			Type:         EntryTypeSent,
			Amount:       Amount(amount),
			Timestamp:    time.UnixMilli(issuedAt),
			Details:      r.String(RemoteFieldDetails),
			Counterparty: r.String(RemoteFieldRecipientUID),
			Status:       status,
			Synced:       true,
		})
	}

	if r.String(RemoteFieldRecipientUID) == owner {
		receivedAt, ok := r.Int(RemoteFieldReceivedAt)
		if !ok {
			receivedAt, ok = issuedAt, hasIssued
		}
		if ok {
			out = append(out, LedgerEntry{
				VoucherID:    r.ID,
				Type:         EntryTypeReceived,
				Amount:       Amount(amount),
				Timestamp:    time.UnixMilli(receivedAt),
				Details:      r.String(RemoteFieldDetails),
				Counterparty: r.String(RemoteFieldSenderUID),
				Status:       VoucherStatusRedeemed,
				Synced:       true,
			})
		}
	}
	return out
}
