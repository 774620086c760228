package txservice

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/ethereum"
)

func testToken() common.Address {
	return common.HexToAddress("0x2000000000000000000000000000000000000002")
}

func TestTransferTokensPacksERC20Call(t *testing.T) {
	svc, _ := newTestService(t, &mockNodeClient{})

	receiver := someAddress()
	amount := big.NewInt(500)
	tx, err := svc.TransferTokens(context.Background(), testToken(), receiver, amount, "xfer-1", "test transfer")
	require.NoError(t, err)

	want, err := ethereum.PackTransfer(receiver, amount)
	require.NoError(t, err)
	assert.Equal(t, want, tx.CallData)
	assert.Equal(t, testToken().Hex(), tx.ContractAddress)
	assert.Equal(t, receiver.Hex(), tx.Receiver)
	assert.False(t, tx.Deployment)
}

func TestTransferTokensRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t, &mockNodeClient{})

	_, err := svc.TransferTokens(context.Background(), testToken(), someAddress(), big.NewInt(0), "", "")
	assert.True(t, apperrors.Is(err, apperrors.CategoryInvariantViolation))

	_, err = svc.TransferTokens(context.Background(), testToken(), someAddress(), nil, "", "")
	assert.True(t, apperrors.Is(err, apperrors.CategoryInvariantViolation))
}

func TestDistributeTokensSkipsAlreadyPreparedEntries(t *testing.T) {
	svc, _ := newTestService(t, &mockNodeClient{})

	entries := []DistributionEntry{
		{ExternalID: "dist-1", Address: common.HexToAddress("0x3000000000000000000000000000000000000003"), Name: "Alice", RawAmount: big.NewInt(100)},
		{ExternalID: "dist-2", Address: common.HexToAddress("0x4000000000000000000000000000000000000004"), Name: "Bob", RawAmount: big.NewInt(200)},
	}

	// Alice's transfer was prepared in an earlier run
	_, err := svc.TransferTokens(context.Background(), testToken(), entries[0].Address, entries[0].RawAmount, "dist-1", "")
	require.NoError(t, err)

	created, existing, err := svc.DistributeTokens(context.Background(), testToken(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, existing)

	// a full re-run is a no-op
	created, existing, err = svc.DistributeTokens(context.Background(), testToken(), entries)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, existing)
}

func TestDistributeTokensRequiresExternalID(t *testing.T) {
	svc, _ := newTestService(t, &mockNodeClient{})

	_, _, err := svc.DistributeTokens(context.Background(), testToken(), []DistributionEntry{
		{Address: someAddress(), RawAmount: big.NewInt(1)},
	})
	assert.True(t, apperrors.Is(err, apperrors.CategoryInvariantViolation))
}

func TestDeployContractQueuesDeployment(t *testing.T) {
	svc, _ := newTestService(t, &mockNodeClient{})

	tx, err := svc.DeployContract(context.Background(), []byte{0x60, 0x80}, "SecurityToken", "initial issuance", "deploy-1")
	require.NoError(t, err)
	assert.True(t, tx.Deployment)
	assert.Equal(t, "deploy-1", tx.ExternalID)
	assert.NotEmpty(t, tx.ContractAddress)
}
