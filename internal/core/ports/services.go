package ports

import (
	"context"
	"crypto/ed25519"
	"time"

	"offline-wallet/internal/core/domain"
)

// KeyVault holds the device's signing keypair and symmetric key.
// Private and symmetric key bytes never cross this interface.
type KeyVault interface {
	// Open prepares the backing storage; KeyStoreUnavailable on failure.
	Open(ctx context.Context) error
	// Generate creates the keypair (and a symmetric key, if none exists)
	// unless already present. created reports whether anything was created.
	Generate(ctx context.Context) (pub ed25519.PublicKey, created bool, err error)
	PublicKey(ctx context.Context) (ed25519.PublicKey, error)
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	Encrypt(ctx context.Context, plaintext []byte) (iv, ciphertext []byte, err error)
	Decrypt(ctx context.Context, iv, ciphertext []byte) ([]byte, error)
	// ImportSymmetricKey replaces the symmetric key with a network-shared one.
	ImportSymmetricKey(ctx context.Context, key []byte) error
}

// PayloadSigner signs exact byte sequences with the device private key.
type PayloadSigner interface {
	Sign(ctx context.Context, msg []byte) ([]byte, error)
}

// PayloadCipher is the authenticated symmetric cipher used for voucher payloads.
type PayloadCipher interface {
	SymmetricEncrypt(ctx context.Context, plaintext []byte) (iv, ciphertext []byte, err error)
	SymmetricDecrypt(ctx context.Context, iv, ciphertext []byte) ([]byte, error)
}

// SignatureVerifier checks signatures against a given public key.
type SignatureVerifier interface {
	// Verify is pure. A malformed key is a VerificationError; a wrong or
	// malformed signature is (false, nil).
	Verify(msg, sig []byte, pub ed25519.PublicKey) (bool, error)
}

// KeyManager is the device identity: key lifecycle plus crypto primitives.
type KeyManager interface {
	PayloadSigner
	PayloadCipher
	SignatureVerifier
	GenerateIdentityKeys(ctx context.Context) (ed25519.PublicKey, error)
	PublicKeyExport(ctx context.Context) (string, error)
}

// VoucherCodec converts payloads to and from the QR wire string.
type VoucherCodec interface {
	Encode(ctx context.Context, payload domain.VoucherPayload, signer PayloadSigner, cipher PayloadCipher) (string, error)
	// Decode verifies the signature before attempting decryption.
	Decode(ctx context.Context, wire string, senderKey ed25519.PublicKey, cipher PayloadCipher) (*domain.VoucherPayload, error)
	// Inspect checks the wire shape without any cryptography.
	Inspect(wire string) (*domain.WireVoucher, error)
}

// HashService handles PIN hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// PinVerifier owns the PIN and its lockout state.
type PinVerifier interface {
	SetPin(ctx context.Context, pin string) error
	// VerifyPin returns nil on success, or InvalidPin, LockedOut or PinNotSet.
	VerifyPin(ctx context.Context, pin string) error
	ResetLockout(ctx context.Context) error
	Attempts(ctx context.Context) (int, error)
}

// TokenService handles JWT token operations for the local API.
type TokenService interface {
	Generate(walletUID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	WalletUID string
	TokenID   string
}

// --- Service Ports (Business Logic) ---

// TransactionEngine issues and redeems vouchers against the local ledger.
type TransactionEngine interface {
	CreateVoucher(ctx context.Context, req CreateVoucherRequest) (*IssuedVoucher, error)
	RedeemVoucher(ctx context.Context, req RedeemRequest) (*Redemption, error)
	CancelVoucher(ctx context.Context, voucherID, pin string) error
	Balance(ctx context.Context) (domain.Amount, error)
	Entries(ctx context.Context) ([]domain.LedgerEntry, error)
	Subscribe(observer LedgerObserver) (unsubscribe func())
	Identity(ctx context.Context) (*Identity, error)
}

// CreateVoucherRequest holds validated input for voucher issuance.
type CreateVoucherRequest struct {
	Amount  domain.Amount
	Pin     string
	Details string
}

// IssuedVoucher is the result of a committed issuance.
type IssuedVoucher struct {
	VoucherID string
	EntryID   int64
	Wire      string
	Amount    domain.Amount
	Timestamp time.Time
}

// RedeemRequest carries a scanned wire string and the sender it claims to come from.
type RedeemRequest struct {
	Wire      string
	SenderUID string
}

// Redemption is the result of a committed redemption.
type Redemption struct {
	VoucherID    string
	EntryID      int64
	Amount       domain.Amount
	Counterparty string
	Details      string
	Message      string
}

// Identity is the wallet's public identity.
type Identity struct {
	UID          string
	PublicKeyPEM string
}

// SyncReconciler mirrors the local ledger to the remote store and back.
type SyncReconciler interface {
	SyncNow(ctx context.Context) (*domain.SyncReport, error)
}
