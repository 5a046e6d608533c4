package verify

type Result struct {
	Values []string `json:"values"`
}

type VerifyRequest struct {
	Calldata []string `json:"calldata"`
}

type VerifyResponse struct {
	ProofResult   []string `json:"proofResult"`
	ServerMessage string   `json:"serverMessage"`
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return "starknet rpc: " + e.Message
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result []string  `json:"result"`
	Error  *RPCError `json:"error"`
}

type callParams struct {
	Request functionCall `json:"request"`
	BlockID string       `json:"block_id"`
}

type functionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}
