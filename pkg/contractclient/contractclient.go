// Package contractclient is the engine's ABI-level contract call/send
// surface: pack call arguments, unpack call results, sign and submit
// transactions, and decode transaction data/receipts back into readable
// method names and parameters.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vantablack/arbengine/internal/arberr"
	"github.com/vantablack/arbengine/internal/util"
	txtypes "github.com/vantablack/arbengine/pkg/types"
)

// ContractClient binds one ABI to one deployed address over one RPC
// connection. It knows nothing about private relays: internal/dispatch
// decides where a signed transaction ultimately goes.
type ContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient builds a client for address, decoding calls/events
// against contractABI.
func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: address, abi: contractABI}
}

// ContractAddress returns the bound contract address.
func (c *ContractClient) ContractAddress() common.Address { return c.address }

// Abi returns the bound ABI, e.g. for a caller that needs to Pack a
// multicall sub-call itself.
func (c *ContractClient) Abi() abi.ABI { return c.abi }

// Call performs a read-only eth_call against method and unpacks its
// outputs in ABI order.
func (c *ContractClient) Call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, arberr.Wrap(arberr.PathInvalid, fmt.Sprintf("pack call %s", method), err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if from != nil {
		msg.From = *from
	}
	output, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err)
	}
	return c.abi.Unpack(method, output)
}

// Send packs, signs and (in SendMode Standard) broadcasts a transaction
// invoking method. It always returns the signed transaction's raw bytes
// alongside its hash so a PrivateBundle caller can forward them to
// internal/dispatch's relay submitter instead of the public mempool.
func (c *ContractClient) Send(
	ctx context.Context,
	mode txtypes.SendMode,
	gasLimit *uint64,
	from *common.Address,
	pk *ecdsa.PrivateKey,
	method string,
	args ...interface{},
) (common.Hash, []byte, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, nil, arberr.Wrap(arberr.PathInvalid, fmt.Sprintf("pack send %s", method), err)
	}

	sender := crypto.PubkeyToAddress(pk.PublicKey)
	if from != nil {
		sender = *from
	}

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("fetch chain id: %w", err)
	}
	nonce, err := c.client.PendingNonceAt(ctx, sender)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("fetch nonce for %s: %w", sender.Hex(), err)
	}
	gasTipCap, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("fetch latest header: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		limit, err = c.client.EstimateGas(ctx, ethereum.CallMsg{From: sender, To: &c.address, Data: input})
		if err != nil {
			return common.Hash{}, nil, fmt.Errorf("estimate gas for %s: %w", method, err)
		}
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       limit,
		To:        &c.address,
		Data:      input,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), pk)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("sign tx %s: %w", method, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("marshal signed tx %s: %w", method, err)
	}

	if mode == txtypes.Standard {
		if err := c.client.SendTransaction(ctx, signed); err != nil {
			return common.Hash{}, nil, fmt.Errorf("broadcast tx %s: %w", method, err)
		}
	}

	return signed.Hash(), raw, nil
}

// TransactionData fetches a confirmed or pending transaction's calldata
// by hash, for decoding with DecodeTransaction.
func (c *ContractClient) TransactionData(ctx context.Context, txHash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", txHash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodedTransaction is a human-readable view of a raw calldata blob:
// the resolved method name and its arguments keyed by parameter name.
type DecodedTransaction struct {
	MethodName string                 `json:"MethodName"`
	Parameter  map[string]interface{} `json:"Parameter"`
}

// DecodeTransaction resolves data's 4-byte method selector against the
// bound ABI and unpacks the remaining bytes into named parameters.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, arberr.New(arberr.PathInvalid, "tx data shorter than a method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("resolve method selector %x: %w", data[:4], err)
	}
	params := map[string]interface{}{}
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack %s inputs: %w", method.Name, err)
	}
	return &DecodedTransaction{MethodName: method.Name, Parameter: params}, nil
}

// DecodeTransactionHex is DecodeTransaction for a 0x-prefixed (or bare)
// hex calldata string.
func (c *ContractClient) DecodeTransactionHex(hexData string) (*DecodedTransaction, error) {
	return c.DecodeTransaction(util.Hex2Bytes(hexData))
}

// ParseReceipt decodes every log in receipt that matches one of this
// ABI's events and returns them as a JSON array of
// pkg/types.DecodedEvent.
func (c *ContractClient) ParseReceipt(receipt *txtypes.TxReceipt) (string, error) {
	if receipt == nil {
		return "", arberr.New(arberr.PathInvalid, "nil receipt")
	}
	events := make([]txtypes.DecodedEvent, 0, len(receipt.Logs))
	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 {
			continue
		}
		event, err := c.abi.EventByID(lg.Topics[0])
		if err != nil {
			continue // not one of this contract's declared events
		}
		params := map[string]interface{}{}
		if err := event.Inputs.NonIndexed().UnpackIntoMap(params, lg.Data); err != nil {
			return "", fmt.Errorf("unpack event %s data: %w", event.Name, err)
		}
		if len(lg.Topics) > 1 {
			var indexed abi.Arguments
			for _, arg := range event.Inputs {
				if arg.Indexed {
					indexed = append(indexed, arg)
				}
			}
			if err := abi.ParseTopicsIntoMap(params, indexed, lg.Topics[1:]); err != nil {
				return "", fmt.Errorf("unpack event %s indexed args: %w", event.Name, err)
			}
		}
		events = append(events, txtypes.DecodedEvent{EventName: event.Name, Parameter: params})
	}
	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal decoded events: %w", err)
	}
	return string(out), nil
}
