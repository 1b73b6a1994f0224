package users

import (
	"context"
	"fmt"

	"github.com/nugraha/cakra/internal/clients/indodax"
	"github.com/nugraha/cakra/internal/domain"
	"github.com/nugraha/cakra/internal/secrets"
)

// CredentialService decrypts a user's exchange credentials on demand.
// Plaintext is produced fresh per call and never cached; it must not
// outlive the exchange call it was fetched for.
type CredentialService struct {
	repo   *Repository
	cipher *secrets.Cipher
}

// NewCredentialService builds the credential source used by the signed
// exchange client.
func NewCredentialService(repo *Repository, cipher *secrets.Cipher) *CredentialService {
	return &CredentialService{repo: repo, cipher: cipher}
}

// Credentials loads and decrypts the user's active key pair.
func (s *CredentialService) Credentials(ctx context.Context, userID int64) (indodax.Credentials, error) {
	key, err := s.repo.ActiveKey(ctx, userID)
	if err != nil {
		return indodax.Credentials{}, err
	}

	apiKey, err := s.cipher.Open(key.APIKeyNonce, key.APIKeyCiphertext)
	if err != nil {
		return indodax.Credentials{}, fmt.Errorf("failed to decrypt api key for user %d: %w", userID, err)
	}

	apiSecret, err := s.cipher.Open(key.APISecretNonce, key.APISecretCiphertext)
	if err != nil {
		return indodax.Credentials{}, fmt.Errorf("failed to decrypt api secret for user %d: %w", userID, err)
	}

	return indodax.Credentials{Key: apiKey, Secret: apiSecret}, nil
}

// StoreCredentials encrypts and persists a new credential pair for a user.
func (s *CredentialService) StoreCredentials(userID int64, apiKey, apiSecret, label string) error {
	keyNonce, keyCiphertext, err := s.cipher.Seal(apiKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}
	secretNonce, secretCiphertext, err := s.cipher.Seal(apiSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt api secret: %w", err)
	}

	return s.repo.SaveAPIKey(&domain.APIKey{
		UserID:              userID,
		APIKeyNonce:         keyNonce,
		APIKeyCiphertext:    keyCiphertext,
		APISecretNonce:      secretNonce,
		APISecretCiphertext: secretCiphertext,
		Label:               label,
	})
}
