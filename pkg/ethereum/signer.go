package ethereum

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/uivlis/sto/pkg/app/errors"
)

// Signer signs transactions for the custodial broadcast account using an
// EIP-155 replay-protected signature. Signing is deterministic for the same
// transaction fields and key.
type Signer struct {
	key     *ecdsa.PrivateKey
	signer  types.Signer
	address common.Address
}

// NewSigner loads the broadcast account's private key and binds signatures to
// the given chain id.
func NewSigner(privateKeyHex string, chainID *big.Int) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, apperrors.ConfigurationError(nil, "broadcast account private key is not configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, apperrors.ConfigurationError(err, "invalid private key material")
	}

	return &Signer{
		key:     key,
		signer:  types.LatestSignerForChainID(chainID),
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the broadcast account address derived from the key
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs the transaction with the custodial key
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return signed, nil
}
