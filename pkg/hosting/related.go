package hosting

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// CardID computes the identifier of a relationship card: the SHA256 digest
// of the card's canonical encoding with the CardID field left empty.
func CardID(card *iop.RelationshipCard) []byte {
	blank := *card
	blank.CardID = nil
	sum := sha256.Sum256(blank.Marshal())
	return sum[:]
}

// AddRelatedIdentity applies a relationship card to a hosted identity under
// an application-chosen slot.
//
// The card must name the hosted identity as recipient, carry a consistent
// CardID and validity window, and verify under the issuer's key; the
// recipient's signature of record is the conversation signature the caller
// passes in (the checked-in identity signed the request carrying the card).
func (s *Service) AddRelatedIdentity(ctx context.Context, identityID []byte, req *iop.AddRelatedIdentityRequest, recipientSignature []byte) error {
	card := req.Card
	if card == nil {
		return &ValidationError{Field: "card"}
	}
	if len(req.ApplicationID) == 0 || len(req.ApplicationID) > identity.NetworkIDSize {
		return &ValidationError{Field: "applicationId"}
	}
	if !iop.ValidVersion(card.Version) {
		return &ValidationError{Field: "card.version"}
	}
	if len(card.IssuerPublicKey) != identity.PublicKeySize {
		return &ValidationError{Field: "card.issuerPublicKey"}
	}
	if len(card.RecipientPublicKey) != identity.PublicKeySize {
		return &ValidationError{Field: "card.recipientPublicKey"}
	}
	if card.ValidTo != 0 && card.ValidTo < card.ValidFrom {
		return &ValidationError{Field: "card.validTo"}
	}
	if !bytes.Equal(card.CardID, CardID(card)) {
		return &ValidationError{Field: "card.cardId"}
	}
	if !identity.VerifyPayload(ed25519.PublicKey(card.IssuerPublicKey), card.Marshal(), req.IssuerSignature) {
		return fmt.Errorf("%w: issuer signature", ErrSignature)
	}

	row, err := s.store.GetHostedIdentity(ctx, identityID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrNotHosted
	}
	if err != nil {
		return err
	}
	if row.Cancelled {
		return ErrCancelled
	}
	if !bytes.Equal(card.RecipientPublicKey, row.PublicKey) {
		return &ValidationError{Field: "card.recipientPublicKey"}
	}

	count, err := s.store.CountRelatedIdentities(ctx, identityID)
	if err != nil {
		return err
	}
	if count >= int64(s.config.MaxRelatedIdentities) {
		return ErrQuotaExceeded
	}

	return s.store.CreateRelatedIdentity(ctx, &models.RelatedIdentity{
		IdentityID:         identityID,
		ApplicationID:      req.ApplicationID,
		CardID:             card.CardID,
		CardVersion:        card.Version,
		Type:               card.Type,
		ValidFrom:          int64(card.ValidFrom),
		ValidTo:            int64(card.ValidTo),
		IssuerPublicKey:    card.IssuerPublicKey,
		RecipientPublicKey: card.RecipientPublicKey,
		IssuerSignature:    req.IssuerSignature,
		RecipientSignature: recipientSignature,
	})
}

// RemoveRelatedIdentity removes the card in one application slot of a hosted
// identity.
func (s *Service) RemoveRelatedIdentity(ctx context.Context, identityID, applicationID []byte) error {
	err := s.store.DeleteRelatedIdentity(ctx, identityID, applicationID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: no card in application slot", models.ErrNotFound)
	}
	return err
}

// GetIdentityRelationships returns the relationship cards applied to an
// identity. Expired or not-yet-valid cards are filtered out unless
// includeInvalid is set; exact type and issuer filters narrow further.
func (s *Service) GetIdentityRelationships(ctx context.Context, req *iop.GetIdentityRelationshipsRequest) ([]*iop.IdentityRelation, error) {
	rows, err := s.store.ListRelatedIdentities(ctx, req.IdentityNetworkID, req.Type, req.IssuerNetworkID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	relations := make([]*iop.IdentityRelation, 0, len(rows))
	for _, row := range rows {
		if !req.IncludeInvalid && !cardValidAt(row, now) {
			continue
		}
		relations = append(relations, &iop.IdentityRelation{
			ApplicationID: row.ApplicationID,
			Card: &iop.RelationshipCard{
				CardID:             row.CardID,
				Version:            row.CardVersion,
				IssuerPublicKey:    row.IssuerPublicKey,
				RecipientPublicKey: row.RecipientPublicKey,
				Type:               row.Type,
				ValidFrom:          uint64(row.ValidFrom),
				ValidTo:            uint64(row.ValidTo),
			},
			IssuerSignature:    row.IssuerSignature,
			RecipientSignature: row.RecipientSignature,
		})
	}
	return relations, nil
}

// cardValidAt reports whether a card's validity window covers the given
// moment (unix milliseconds). A zero ValidTo means no expiry.
func cardValidAt(row *models.RelatedIdentity, now int64) bool {
	if now < row.ValidFrom {
		return false
	}
	return row.ValidTo == 0 || now <= row.ValidTo
}
