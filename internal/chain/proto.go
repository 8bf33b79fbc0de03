package chain

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	pathSmartContractState = "/cosmwasm.wasm.v1.Query/SmartContractState"
	pathContractInfo       = "/cosmwasm.wasm.v1.Query/ContractInfo"
	pathContractHistory    = "/cosmwasm.wasm.v1.Query/ContractHistory"
)

func appendString(b []byte, num protowire.Number, value string) []byte {
	if value == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, value)
}

func appendBytes(b []byte, num protowire.Number, value []byte) []byte {
	if len(value) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, value)
}

func appendVarint(b []byte, num protowire.Number, value uint64) []byte {
	if value == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, value)
}

// QuerySmartContractStateRequest{address=1, query_data=2}
func encodeSmartQueryRequest(address string, query []byte) []byte {
	var b []byte
	b = appendString(b, 1, address)
	return appendBytes(b, 2, query)
}

// QueryContractInfoRequest{address=1}
func encodeContractInfoRequest(address string) []byte {
	return appendString(nil, 1, address)
}

// QueryContractHistoryRequest{address=1, pagination=2{key=1, limit=3}}
func encodeContractHistoryRequest(address string, pageKey []byte, limit uint64) []byte {
	var page []byte
	page = appendBytes(page, 1, pageKey)
	page = appendVarint(page, 3, limit)

	var b []byte
	b = appendString(b, 1, address)
	return appendBytes(b, 2, page)
}

type fieldFunc func(num protowire.Number, typ protowire.Type, data []byte, varint uint64) error

// walkFields calls fn for every varint and length-delimited field of b and
// skips everything else.
func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("consume varint %d: %w", num, protowire.ParseError(n))
			}
			if err := fn(num, typ, nil, v); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("consume bytes %d: %w", num, protowire.ParseError(n))
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// QuerySmartContractStateResponse{data=1}
func decodeSmartQueryResponse(b []byte) ([]byte, error) {
	var data []byte
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
		if num == 1 && typ == protowire.BytesType {
			data = append([]byte(nil), value...)
		}
		return nil
	})
	return data, err
}

// QueryContractInfoResponse{address=1, contract_info=2{code_id=1, creator=2, admin=3, label=4}}
func decodeContractInfoResponse(b []byte) (Contract, error) {
	var contract Contract
	var found bool
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			contract.Address = string(value)
		case num == 2 && typ == protowire.BytesType:
			found = true
			return walkFields(value, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
				switch {
				case num == 1 && typ == protowire.VarintType:
					contract.CodeID = varint
				case num == 2 && typ == protowire.BytesType:
					contract.Creator = string(value)
				case num == 3 && typ == protowire.BytesType:
					contract.Admin = string(value)
				case num == 4 && typ == protowire.BytesType:
					contract.Label = string(value)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	if !found {
		return Contract{}, ErrNotFound
	}
	return contract, nil
}

// QueryContractHistoryResponse{entries=1{operation=1, code_id=2, updated=3, msg=4}, pagination=2{next_key=1}}
func decodeContractHistoryResponse(b []byte) ([]CodeHistoryEntry, []byte, error) {
	var entries []CodeHistoryEntry
	var nextKey []byte
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			var entry CodeHistoryEntry
			err := walkFields(value, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
				switch {
				case num == 1 && typ == protowire.VarintType:
					entry.Operation = Operation(varint)
				case num == 2 && typ == protowire.VarintType:
					entry.CodeID = varint
				case num == 4 && typ == protowire.BytesType:
					entry.Msg = append([]byte(nil), value...)
				}
				return nil
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		case 2:
			return walkFields(value, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
				if num == 1 && typ == protowire.BytesType {
					nextKey = append([]byte(nil), value...)
				}
				return nil
			})
		}
		return nil
	})
	return entries, nextKey, err
}
