package pos

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/oauth2"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Record is a stored credential. Token fields hold ciphertext.
type Record struct {
	ID               string
	RestaurantID     string
	Vendor           string
	MerchantID       string
	AccessToken      []byte
	RefreshToken     []byte
	ExpiresAt        time.Time
	LastRefreshError string
}

// RecordStore persists credential records.
type RecordStore interface {
	GetCredential(ctx context.Context, id string) (*Record, error)
	SaveCredential(ctx context.Context, r *Record) error
	UpdateTokens(ctx context.Context, id string, access, refresh []byte, expiresAt time.Time) error
	RecordRefreshFailure(ctx context.Context, id, message string) error
}

// Credential is a decrypted OAuth credential for one merchant.
type Credential struct {
	ID           string
	RestaurantID string
	Vendor       string
	MerchantID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token is no longer usable at now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Token returns the credential as an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.ExpiresAt,
	}
}

// Cipher seals tokens with XChaCha20-Poly1305. The random nonce is stored
// in front of the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher takes a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credentials key: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromBase64 decodes a standard base64 key.
func NewCipherFromBase64(key string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("credentials key is not base64: %w", err)
	}
	return NewCipher(raw)
}

func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	plain, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}
	return plain, nil
}

// Refresher exchanges refresh tokens at the vendor's token endpoint.
type Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewRefresher(clientID, clientSecret, tokenURL string, httpClient *http.Client) *Refresher {
	return &Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		httpClient: httpClient,
	}
}

// Refresh returns a new token for refreshToken.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	// An empty access token is never valid, so the source always refreshes.
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, catalog.E(catalog.ErrExternalService, "refresh token", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// Vault loads, stores and refreshes credentials, encrypting tokens at rest.
type Vault struct {
	records   RecordStore
	cipher    *Cipher
	refresher *Refresher
	now       func() time.Time
}

func NewVault(records RecordStore, c *Cipher, refresher *Refresher) *Vault {
	return &Vault{records: records, cipher: c, refresher: refresher, now: time.Now}
}

// Save encrypts and stores cred, assigning its id when empty.
func (v *Vault) Save(ctx context.Context, cred *Credential) error {
	access, err := v.cipher.Seal([]byte(cred.AccessToken))
	if err != nil {
		return err
	}
	refresh, err := v.cipher.Seal([]byte(cred.RefreshToken))
	if err != nil {
		return err
	}
	rec := &Record{
		ID:           cred.ID,
		RestaurantID: cred.RestaurantID,
		Vendor:       cred.Vendor,
		MerchantID:   cred.MerchantID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    cred.ExpiresAt,
	}
	if err := v.records.SaveCredential(ctx, rec); err != nil {
		return err
	}
	cred.ID = rec.ID
	return nil
}

// Load returns the decrypted credential.
func (v *Vault) Load(ctx context.Context, id string) (*Credential, error) {
	rec, err := v.records.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	access, err := v.cipher.Open(rec.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := v.cipher.Open(rec.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &Credential{
		ID:           rec.ID,
		RestaurantID: rec.RestaurantID,
		Vendor:       rec.Vendor,
		MerchantID:   rec.MerchantID,
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

// Usable returns the credential for an inventory fetch. Expired credentials
// are not refreshed here; the token refresh schedule owns that, so a fetch
// against an expired credential fails with an external-service error.
func (v *Vault) Usable(ctx context.Context, id string) (*Credential, error) {
	cred, err := v.Load(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
		return nil, catalog.E(catalog.ErrExternalService, "load credential", err)
	}
	if cred.Expired(v.now()) {
		return nil, catalog.Errorf(catalog.ErrExternalService, "load credential",
			"credential %s expired at %s", id, cred.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return cred, nil
}

// Refresh exchanges the stored refresh token and stores the new pair. A
// failure is recorded on the credential and returned.
func (v *Vault) Refresh(ctx context.Context, id string) (*Credential, error) {
	cred, err := v.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	tok, err := v.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if rerr := v.records.RecordRefreshFailure(ctx, id, err.Error()); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}

	access, err := v.cipher.Seal([]byte(tok.AccessToken))
	if err != nil {
		return nil, err
	}
	refresh, err := v.cipher.Seal([]byte(tok.RefreshToken))
	if err != nil {
		return nil, err
	}
	if err := v.records.UpdateTokens(ctx, id, access, refresh, tok.Expiry); err != nil {
		return nil, err
	}

	cred.AccessToken = tok.AccessToken
	cred.RefreshToken = tok.RefreshToken
	cred.ExpiresAt = tok.Expiry
	return cred, nil
}
