package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestSmartQueryRoundTrip(t *testing.T) {
	req := encodeSmartQueryRequest("juno1pool", []byte(`{"info":{}}`))

	var address string
	var query []byte
	err := walkFields(req, func(num protowire.Number, typ protowire.Type, data []byte, _ uint64) error {
		switch num {
		case 1:
			address = string(data)
		case 2:
			query = data
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "juno1pool", address)
	require.JSONEq(t, `{"info":{}}`, string(query))

	resp := appendBytes(nil, 1, []byte(`{"token1_reserve":"10"}`))
	data, err := decodeSmartQueryResponse(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{"token1_reserve":"10"}`, string(data))
}

func TestDecodeContractInfo(t *testing.T) {
	var info []byte
	info = appendVarint(info, 1, 435)
	info = appendString(info, 2, "juno1creator")
	info = appendString(info, 3, "juno1admin")
	info = appendString(info, 4, "DAO token")

	var resp []byte
	resp = appendString(resp, 1, "juno1token")
	resp = appendBytes(resp, 2, info)

	contract, err := decodeContractInfoResponse(resp)
	require.NoError(t, err)
	require.Equal(t, Contract{Address: "juno1token", CodeID: 435, Creator: "juno1creator", Admin: "juno1admin", Label: "DAO token"}, contract)

	_, err = decodeContractInfoResponse(appendString(nil, 1, "juno1token"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeContractHistory(t *testing.T) {
	entry := func(op Operation, codeID uint64, msg string) []byte {
		var b []byte
		b = appendVarint(b, 1, uint64(op))
		b = appendVarint(b, 2, codeID)
		b = appendBytes(b, 3, appendVarint(nil, 1, 99))
		return appendBytes(b, 4, []byte(msg))
	}

	var resp []byte
	resp = appendBytes(resp, 1, entry(OperationInit, 435, `{"decimals":6}`))
	resp = appendBytes(resp, 1, entry(OperationMigrate, 500, `{}`))
	resp = appendBytes(resp, 2, appendBytes(nil, 1, []byte("next")))

	entries, nextKey, err := decodeContractHistoryResponse(resp)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, OperationInit, entries[0].Operation)
	require.Equal(t, uint64(435), entries[0].CodeID)
	require.JSONEq(t, `{"decimals":6}`, string(entries[0].Msg))
	require.Equal(t, OperationMigrate, entries[1].Operation)
	require.Equal(t, []byte("next"), nextKey)

	_, _, err = decodeContractHistoryResponse([]byte{0xff})
	require.Error(t, err)
}
