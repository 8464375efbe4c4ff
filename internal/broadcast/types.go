// Package broadcast extracts deployment records from Foundry broadcast logs.
package broadcast

import (
	"encoding/json"
	"sort"

	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

// RunFile is the latest-run file Foundry writes per script and chain.
type RunFile struct {
	Transactions []TransactionResult    `json:"transactions"`
	Returns      map[string]ReturnValue `json:"returns"`
	Chain        uint64                 `json:"chain"`
}

// TransactionResult is one transaction of a broadcast run.
type TransactionResult struct {
	Hash            string         `json:"hash"`
	TransactionType string         `json:"transactionType"`
	ContractName    *string        `json:"contractName"`
	ContractAddress *string        `json:"contractAddress"`
	Function        *string        `json:"function"`
	Arguments       []string       `json:"arguments"`
	Transaction     RawTransaction `json:"transaction"`
}

// UnmarshalJSON accepts Foundry's camelCase keys and their snake_case
// spellings. camelCase wins when both are present.
func (t *TransactionResult) UnmarshalJSON(data []byte) error {
	type plain TransactionResult
	var aux struct {
		plain
		SnakeTransactionType string  `json:"transaction_type"`
		SnakeContractName    *string `json:"contract_name"`
		SnakeContractAddress *string `json:"contract_address"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = TransactionResult(aux.plain)
	if t.TransactionType == "" {
		t.TransactionType = aux.SnakeTransactionType
	}
	if t.ContractName == nil {
		t.ContractName = aux.SnakeContractName
	}
	if t.ContractAddress == nil {
		t.ContractAddress = aux.SnakeContractAddress
	}
	return nil
}

// RawTransaction holds the fields of the signed transaction.
type RawTransaction struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Gas   string `json:"gas"`
	Value string `json:"value"`
	Input string `json:"input"`
	Nonce string `json:"nonce"`
}

// ReturnValue is a script return value rendered by Foundry.
type ReturnValue struct {
	InternalType string `json:"internal_type"`
	Value        string `json:"value"`
}

// DescriptorType is the internal type of the return value carrying
// deployment descriptors.
const DescriptorType = "struct DeployerDeployment[]"

// Descriptor is one deployment tuple returned by a deploy script.
type Descriptor struct {
	Name             string
	Address          string
	Bytecode         string
	ArgsData         string
	ArtifactFullPath string
	Context          string
	ChainID          uint64
}

// Result is the outcome of parsing a broadcast root.
type Result struct {
	Records  map[string]domain.Record
	Failures []*domain.MalformedBroadcastError
	// Skipped counts void descriptors.
	Skipped int
	// Files counts run files that were read.
	Files int
}

// Keys returns record keys in sorted order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Records))
	for k := range r.Records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
