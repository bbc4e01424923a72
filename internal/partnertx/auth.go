package partnertx

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/security"
)

// WalletOpener creates the partner's settlement wallet.
type WalletOpener interface {
	Open(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error)
}

// ProvisionResult returns the only copy of the plaintext secret.
type ProvisionResult struct {
	Partner *models.Partner `json:"partner"`
	APIKey  string          `json:"api_key"`
	Secret  string          `json:"api_secret"`
}

// Authenticator resolves partner API credentials.
type Authenticator struct {
	repo    Repository
	wallets WalletOpener
	hashCfg config.SecretHashConfig
}

func NewAuthenticator(repo Repository, wallets WalletOpener, hashCfg config.SecretHashConfig) (*Authenticator, error) {
	if repo == nil {
		return nil, fmt.Errorf("partner repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet opener required")
	}
	return &Authenticator{repo: repo, wallets: wallets, hashCfg: hashCfg}, nil
}

// Authenticate verifies an API key/secret pair. Unknown keys and wrong
// secrets are indistinguishable to the caller.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey, secret string) (*models.Partner, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "partner credentials required")
	}
	partner, err := a.repo.FindPartnerByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup partner")
	}
	if partner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid partner credentials")
	}
	ok, err := security.VerifySecret(secret, partner.APISecretHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid partner credentials")
	}
	if partner.Status != enums.PartnerStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "partner disabled")
	}
	return partner, nil
}

// Provision registers a partner with its own wallet and fresh credentials.
func (a *Authenticator) Provision(ctx context.Context, name string, currency enums.Currency) (*ProvisionResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner name is required")
	}

	partnerID := uuid.New()
	wallet, err := a.wallets.Open(ctx, partnerID, enums.WalletOwnerPartner, currency)
	if err != nil {
		return nil, err
	}
	creds, err := security.IssueCredentials(a.hashCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue partner credentials")
	}
	partner := &models.Partner{
		ID:            partnerID,
		Name:          name,
		APIKey:        creds.APIKey,
		APISecretHash: creds.SecretHash,
		WalletID:      wallet.ID,
		Status:        enums.PartnerStatusActive,
	}
	if err := a.repo.CreatePartner(ctx, partner); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create partner")
	}
	return &ProvisionResult{Partner: partner, APIKey: creds.APIKey, Secret: creds.Secret}, nil
}
