package model

// DecodeError records a decode failure for a message line.
type DecodeError struct {
	BlockHeight uint64 `json:"block_height"`
	TxHash      string `json:"tx_hash"`
	MsgIndex    int    `json:"msg_index"`
	Contract    string `json:"contract"`
	Type        string `json:"type"`
	Error       string `json:"error"`
}

// DecodeErrorFromMessage builds a DecodeError for msg.
func DecodeErrorFromMessage(msg Message, err error) DecodeError {
	return DecodeError{
		BlockHeight: msg.BlockHeight,
		TxHash:      msg.TxHash,
		MsgIndex:    msg.MsgIndex,
		Contract:    msg.Contract,
		Type:        msg.Type,
		Error:       err.Error(),
	}
}
