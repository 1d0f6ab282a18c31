package frame

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_JSON(t *testing.T) {
	for _, p := range []Phase{PhaseUninitialized, PhaseLoading, PhaseReady, PhaseUnmounted} {
		data, err := json.Marshal(p)
		require.NoError(t, err)

		var got Phase
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, p, got)
	}
	assert.Equal(t, "phase(9)", Phase(9).String())
	assert.True(t, PhaseUnmounted.IsTerminal())
	assert.False(t, PhaseReady.IsTerminal())
}

func TestTransferState_JSON(t *testing.T) {
	data, err := json.Marshal(TransferStatus{State: TransferConfirming, TxHash: "0x1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"confirming","tx_hash":"0x1"}`, string(data))

	assert.Equal(t, TransferFailed, ParseTransferState("failed"))
	assert.Equal(t, TransferIdle, ParseTransferState("bogus"))
	assert.True(t, TransferPending.InFlight())
	assert.False(t, TransferConfirmed.InFlight())
}

func TestClassifyAddError(t *testing.T) {
	assert.Equal(t, AddResult{Outcome: AddRequested}, ClassifyAddError(nil))
	assert.Equal(t, "Not added: rejected by user", ClassifyAddError(&RejectedByUserError{}).Display())
	assert.Equal(t, "Not added: invalid domain manifest", ClassifyAddError(&InvalidDomainManifestError{}).Display())
	assert.Equal(t, "", AddResult{}.Display())
	assert.Equal(t, "not_attempted", AddNotAttempted.String())
}
