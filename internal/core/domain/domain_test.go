package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr error
	}{
		{"25.50", 2550, nil},
		{"25.5", 2550, nil},
		{"50", 5000, nil},
		{".75", 75, nil},
		{" 1.01 ", 101, nil},
		{"-3.20", -320, nil},
		{"0", 0, nil},
		{"", 0, ErrAmountFormat},
		{"1.", 0, ErrAmountFormat},
		{"abc", 0, ErrAmountFormat},
		{"+5", 0, ErrAmountFormat},
		{"1.2.3", 0, ErrAmountFormat},
		{"1.234", 0, ErrAmountPrecision},
		{"99999999999999999999", 0, ErrAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "25.50", Amount(2550).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-1.00", Amount(-100).String())
	assert.Equal(t, "0.00", Amount(0).String())
}

func TestAmount_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Amount `json:"a"`
	}{A: 2550})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"25.50"}`, string(b))

	var out struct {
		A Amount `json:"a"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"50.00"}`), &out))
	assert.Equal(t, Amount(5000), out.A)
}

func TestVoucherStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to VoucherStatus
		want     bool
	}{
		{VoucherStatusIssued, VoucherStatusRedeemed, true},
		{VoucherStatusIssued, VoucherStatusCancelled, true},
		{VoucherStatusIssued, VoucherStatusIssued, true},
		{VoucherStatusRedeemed, VoucherStatusIssued, false},
		{VoucherStatusRedeemed, VoucherStatusCancelled, false},
		{VoucherStatusCancelled, VoucherStatusRedeemed, false},
		{VoucherStatusCancelled, VoucherStatusIssued, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, VoucherStatusRedeemed.IsTerminal())
	assert.False(t, VoucherStatusIssued.IsTerminal())
}

func TestParsePayload_Scenario(t *testing.T) {
	raw := []byte("amount=25.50;senderTxId=U123;details=lunch;timestamp=1700000000000")

	p, err := ParsePayload(raw, time.Now())
	require.NoError(t, err)

	assert.Equal(t, Amount(2550), p.Amount)
	assert.Equal(t, "U123", p.SenderUID)
	assert.Equal(t, "lunch", p.Details)
	assert.Equal(t, int64(1700000000000), p.Timestamp.UnixMilli())
	assert.Equal(t, DeriveVoucherID(raw), p.VoucherID)
	assert.Len(t, p.VoucherID, len("vch_")+26)
}

func TestParsePayload_Defaults(t *testing.T) {
	now := time.UnixMilli(1_700_000_123_000)

	p, err := ParsePayload([]byte("amount=5;senderTxId=U9"), now)
	require.NoError(t, err)
	assert.Equal(t, "", p.Details)
	assert.True(t, now.Equal(p.Timestamp))

	p, err = ParsePayload([]byte("amount=5;senderTxId=U9;timestamp=yesterday"), now)
	require.NoError(t, err)
	assert.True(t, now.Equal(p.Timestamp))
}

func TestParsePayload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"missing amount", "senderTxId=U1;details=x", ErrMissingAmount},
		{"non numeric amount", "amount=ten;senderTxId=U1", ErrAmountFormat},
		{"missing sender", "amount=1.00;details=x", ErrMissingSender},
		{"empty sender", "amount=1.00;senderTxId= ", ErrMissingSender},
		{"empty voucher id", "amount=1.00;senderTxId=U1;voucherId=", ErrInvalidVoucherID},
		{"garbage", "\x00\x01\x02", ErrMissingAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.raw), time.Now())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVoucherPayload_CanonicalRoundTrip(t *testing.T) {
	p := VoucherPayload{
		VoucherID: "vch_01h455vb4pex5vsknk084sn02q",
		SenderUID: "U1",
		Amount:    MustParseAmount("50.00"),
		Details:   "rent; split=50% each",
		Timestamp: time.UnixMilli(1700000000000),
	}

	raw := p.Canonical()
	assert.Equal(t,
		"amount=50.00;senderTxId=U1;details=rent%3B split%3D50%25 each;timestamp=1700000000000;voucherId=vch_01h455vb4pex5vsknk084sn02q",
		string(raw))

	got, err := ParsePayload(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, p.VoucherID, got.VoucherID)
	assert.Equal(t, p.Details, got.Details)
	assert.Equal(t, p.Amount, got.Amount)
	assert.True(t, p.Timestamp.Equal(got.Timestamp))
}

func TestParsePayload_BarePercentKept(t *testing.T) {
	p, err := ParsePayload([]byte("amount=1;senderTxId=U1;details=100%"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "100%", p.Details)
}

func TestBalance_OrderIndependent(t *testing.T) {
	entries := []LedgerEntry{
		{Type: EntryTypeReceived, Amount: 10000},
		{Type: EntryTypeSent, Amount: 5000},
		{Type: EntryTypeReceived, Amount: 2550},
		{Type: EntryTypeSent, Amount: 1},
	}
	want := Amount(10000 + 2550 - 5000 - 1)
	assert.Equal(t, want, Balance(entries))

	reversed := []LedgerEntry{entries[3], entries[2], entries[1], entries[0]}
	assert.Equal(t, want, Balance(reversed))
	assert.Equal(t, Amount(0), Balance(nil))
}

func TestSortNewestFirst(t *testing.T) {
	t0 := time.UnixMilli(1000)
	entries := []LedgerEntry{
		{ID: 1, Timestamp: t0},
		{ID: 2, Timestamp: t0.Add(time.Second)},
		{ID: 3, Timestamp: t0},
	}

	SortNewestFirst(entries)
	assert.Equal(t, []int64{2, 3, 1}, ids(entries))

	SortOldestFirst(entries)
	assert.Equal(t, []int64{1, 3, 2}, ids(entries))
}

func TestLedgerEntry_RemoteKey(t *testing.T) {
	e := LedgerEntry{Type: EntryTypeReceived, Timestamp: time.UnixMilli(1700000000000), Counterparty: "U123"}
	assert.Equal(t, "RECEIVED:1700000000000:U123", e.RemoteKey())

	e.VoucherID = "vch_abc"
	assert.Equal(t, "vch_abc", e.RemoteKey())
}

func TestLedgerEntry_IsCancellable(t *testing.T) {
	e := LedgerEntry{Type: EntryTypeSent, Status: VoucherStatusIssued}
	assert.True(t, e.IsCancellable())

	e.Synced = true
	assert.False(t, e.IsCancellable())

	e = LedgerEntry{Type: EntryTypeSent, Status: VoucherStatusRedeemed}
	assert.False(t, e.IsCancellable())

	e = LedgerEntry{Type: EntryTypeReceived, Status: VoucherStatusIssued}
	assert.False(t, e.IsCancellable())
}

func TestRemoteFields_SidesDoNotOverlapOnStatus(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	sent := RemoteFields(LedgerEntry{VoucherID: "v1", Type: EntryTypeSent, Amount: 5000, Timestamp: ts, Status: VoucherStatusIssued}, "A")
	recv := RemoteFields(LedgerEntry{VoucherID: "v1", Type: EntryTypeReceived, Amount: 5000, Timestamp: ts, Counterparty: "A", Status: VoucherStatusRedeemed}, "B")

	assert.Equal(t, "A", sent[RemoteFieldSenderUID])
	assert.Equal(t, "ISSUED", sent[RemoteFieldSenderStatus])
	assert.NotContains(t, sent, RemoteFieldRecipientStatus)

	assert.Equal(t, "B", recv[RemoteFieldRecipientUID])
	assert.Equal(t, "A", recv[RemoteFieldSenderUID])
	assert.NotContains(t, recv, RemoteFieldSenderStatus)

	// Sender pushes after the recipient: the merged record stays REDEEMED.
	merged := RemoteRecord{Collection: CollectionVouchers, ID: "v1", Fields: map[string]any{}}
	for k, v := range recv {
		merged.Fields[k] = v
	}
	for k, v := range sent {
		merged.Fields[k] = v
	}
	assert.Equal(t, VoucherStatusRedeemed, merged.Status())
}

func TestRemoteRecord_EntriesFor(t *testing.T) {
	rec := RemoteRecord{
		Collection: CollectionVouchers,
		ID:         "vch_1",
		Fields: map[string]any{
			RemoteFieldSenderUID:    "A",
			RemoteFieldRecipientUID: "B",
			RemoteFieldAmountMinor:  float64(2550),
			RemoteFieldIssuedAt:     int64(1000),
			RemoteFieldReceivedAt:   int32(2000),
			RemoteFieldDetails:      "lunch",
		},
	}

	sender := rec.EntriesFor("A")
	require.Len(t, sender, 1)
	assert.Equal(t, EntryTypeSent, sender[0].Type)
	assert.Equal(t, VoucherStatusRedeemed, sender[0].Status)
	assert.Equal(t, "B", sender[0].Counterparty)
	assert.True(t, sender[0].Synced)

	recipient := rec.EntriesFor("B")
	require.Len(t, recipient, 1)
	assert.Equal(t, EntryTypeReceived, recipient[0].Type)
	assert.Equal(t, Amount(2550), recipient[0].Amount)
	assert.Equal(t, int64(2000), recipient[0].Timestamp.UnixMilli())
	assert.Equal(t, "A", recipient[0].Counterparty)

	assert.Empty(t, rec.EntriesFor("C"))
}

func TestRemoteRecord_EntriesFor_Transaction(t *testing.T) {
	rec := RemoteRecord{
		Collection: CollectionTransactions,
		ID:         "RECEIVED:1000:U9",
		Fields: map[string]any{
			RemoteFieldOwnerUID:     "A",
			RemoteFieldType:         "RECEIVED",
			RemoteFieldAmountMinor:  json.Number("100"),
			RemoteFieldTimestamp:    float64(1000),
			RemoteFieldCounterparty: "U9",
		},
	}

	got := rec.EntriesFor("A")
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].RemoteKey())
	assert.Empty(t, rec.EntriesFor("B"))

	rec.Fields[RemoteFieldAmountMinor] = 1.5
	assert.Empty(t, rec.EntriesFor("A"))
}

func TestRemoteRecord_Status(t *testing.T) {
	rec := RemoteRecord{Fields: map[string]any{RemoteFieldSenderStatus: "CANCELLED"}}
	assert.Equal(t, VoucherStatusCancelled, rec.Status())

	rec.Fields[RemoteFieldSenderStatus] = "ISSUED"
	assert.Equal(t, VoucherStatusIssued, rec.Status())
}

func TestSyncReport_Partial(t *testing.T) {
	r := &SyncReport{}
	assert.False(t, r.Partial())
	r.Fail(3, "vch_1", assert.AnError)
	assert.True(t, r.Partial())
	assert.Equal(t, int64(3), r.Failures[0].EntryID)
}

func ids(entries []LedgerEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
