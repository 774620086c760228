package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ValidateAddress checks that s is a well-formed Ethereum address.
// All-lowercase (and all-uppercase) addresses are accepted as unchecksummed;
// mixed-case addresses must carry a valid EIP-55 checksum.
func ValidateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("not an Ethereum address: %s", s)
	}

	hexPart := strings.TrimPrefix(s, "0x")
	if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
		return nil
	}
	if common.HexToAddress(s).Hex() != s {
		return fmt.Errorf("not a checksummed Ethereum address: %s", s)
	}
	return nil
}

// ContractAddress computes the address a contract deployed by sender at the
// given nonce will live at, so the address is known before the deployment is
// mined.
func ContractAddress(sender common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(sender, nonce)
}
