package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"omnibridge/pkg/retry"
)

// Minimal ABI fragments for the contracts the adapter talks to. Only the
// functions actually called are declared.
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

const oftABI = `[
{"inputs":[{"name":"_dstEid","type":"uint32"},{"name":"_to","type":"bytes32"},{"name":"_amountLD","type":"uint256"},{"name":"_minAmountLD","type":"uint256"}],"name":"quoteSend","outputs":[{"name":"nativeFee","type":"uint256"},{"name":"lzTokenFee","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"_dstEid","type":"uint32"},{"name":"_to","type":"bytes32"},{"name":"_amountLD","type":"uint256"},{"name":"_minAmountLD","type":"uint256"}],"name":"send","outputs":[],"stateMutability":"payable","type":"function"}]`

const endpointABI = `[
{"inputs":[{"name":"_dstEid","type":"uint32"},{"name":"_sender","type":"address"}],"name":"outboundNonce","outputs":[{"name":"","type":"uint64"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"_srcEid","type":"uint32"},{"name":"_sender","type":"bytes32"}],"name":"inboundNonce","outputs":[{"name":"","type":"uint64"}],"stateMutability":"view","type":"function"}]`

// Event signatures of the protocol's send/receive records.
const (
	OFTSentEvent     = "OFTSent(bytes32,uint32,address,uint256)"
	OFTReceivedEvent = "OFTReceived(bytes32,uint32,address,uint256)"
)

// EventTopic returns the topic0 hash for an event signature.
func EventTopic(signature string) string {
	return crypto.Keccak256Hash([]byte(signature)).Hex()
}

// AddressToBytes32 left-pads an EVM address into the protocol's 32-byte
// recipient encoding.
func AddressToBytes32(address string) [32]byte {
	var out [32]byte
	copy(out[12:], common.HexToAddress(address).Bytes())
	return out
}

// EVMConfig configures one EVM network adapter.
type EVMConfig struct {
	Name            string
	RPCUrl          string
	ChainID         int64
	EndpointAddress string
	PrivateKey      string
	GasLimit        uint64  // 0 means estimate with a 20% buffer
	RateLimit       float64 // RPC calls per second, 0 disables limiting
}

// EVMAdapter implements Adapter against an EVM JSON-RPC endpoint, signing
// submissions locally.
type EVMAdapter struct {
	cfg        EVMConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	limiter    *rate.Limiter
	log        zerolog.Logger

	erc20    abi.ABI
	oft      abi.ABI
	endpoint abi.ABI
}

// NewEVMAdapter connects to the network's RPC endpoint and parses the ABI
// fragments once.
func NewEVMAdapter(cfg EVMConfig, log zerolog.Logger) (*EVMAdapter, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for network %s", cfg.Name)
	}

	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	a := &EVMAdapter{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("network", cfg.Name).Logger(),
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		a.privateKey = key
		a.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	if cfg.RateLimit > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	if a.erc20, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	if a.oft, err = abi.JSON(strings.NewReader(oftABI)); err != nil {
		return nil, fmt.Errorf("failed to parse OFT ABI: %w", err)
	}
	if a.endpoint, err = abi.JSON(strings.NewReader(endpointABI)); err != nil {
		return nil, fmt.Errorf("failed to parse endpoint ABI: %w", err)
	}

	return a, nil
}

func (a *EVMAdapter) Network() string { return a.cfg.Name }

// SenderAddress returns the address derived from the configured signing key.
func (a *EVMAdapter) SenderAddress() string { return a.from.Hex() }

func (a *EVMAdapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *EVMAdapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (a *EVMAdapter) GetTokenBalance(ctx context.Context, tokenAddress, address string) (*big.Int, error) {
	out, err := a.callUint256(ctx, a.erc20, tokenAddress, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return out, nil
}

func (a *EVMAdapter) GetAllowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error) {
	out, err := a.callUint256(ctx, a.erc20, tokenAddress, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	return out, nil
}

func (a *EVMAdapter) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return convertReceipt(receipt), nil
}

func (a *EVMAdapter) GetBlockNumber(ctx context.Context) (uint64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	return a.client.BlockNumber(ctx)
}

func (a *EVMAdapter) GetGasPrice(ctx context.Context) (*big.Int, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return a.client.SuggestGasPrice(ctx)
}

func (a *EVMAdapter) SubmitApproval(ctx context.Context, tokenAddress, spender string, amount *big.Int) (string, error) {
	data, err := a.erc20.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve data: %w", err)
	}
	return a.submit(ctx, common.HexToAddress(tokenAddress), big.NewInt(0), data)
}

func (a *EVMAdapter) SubmitTransfer(ctx context.Context, tx TransferTx) (string, error) {
	data, err := a.oft.Pack("send", tx.DestinationEndpointID, tx.Recipient, tx.Amount, tx.MinAmount)
	if err != nil {
		return "", fmt.Errorf("failed to pack send data: %w", err)
	}
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	return a.submit(ctx, common.HexToAddress(tx.TokenAddress), value, data)
}

func (a *EVMAdapter) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	var receipt *Receipt
	err := retry.WaitFor(ctx, 3*time.Second, timeout, func(ctx context.Context) (bool, error) {
		r, err := a.GetReceipt(ctx, txHash)
		if err != nil {
			// transient read failures are absorbed by the next tick
			a.log.Debug().Err(err).Str("txHash", txHash).Msg("receipt poll failed")
			return false, nil
		}
		receipt = r
		return r != nil, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (a *EVMAdapter) QuoteMessageFee(ctx context.Context, q MessageFeeQuery) (*MessageFee, error) {
	data, err := a.oft.Pack("quoteSend", q.DestinationEndpointID, q.Recipient, q.Amount, q.MinAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack quoteSend data: %w", err)
	}
	out, err := a.call(ctx, q.TokenAddress, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call quoteSend: %w", err)
	}
	vals, err := a.oft.Unpack("quoteSend", out)
	if err != nil || len(vals) != 2 {
		return nil, fmt.Errorf("failed to unpack quoteSend result: %w", err)
	}
	return &MessageFee{
		NativeFee:        vals[0].(*big.Int),
		ProtocolTokenFee: vals[1].(*big.Int),
	}, nil
}

func (a *EVMAdapter) ReadOutboundCounter(ctx context.Context, dstEndpointID uint32, sender string) (uint64, error) {
	data, err := a.endpoint.Pack("outboundNonce", dstEndpointID, common.HexToAddress(sender))
	if err != nil {
		return 0, fmt.Errorf("failed to pack outboundNonce data: %w", err)
	}
	return a.callNonce(ctx, "outboundNonce", data)
}

func (a *EVMAdapter) ReadInboundCounter(ctx context.Context, srcEndpointID uint32, senderBytes [32]byte) (uint64, error) {
	data, err := a.endpoint.Pack("inboundNonce", srcEndpointID, senderBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to pack inboundNonce data: %w", err)
	}
	return a.callNonce(ctx, "inboundNonce", data)
}

func (a *EVMAdapter) QueryRecentLogs(ctx context.Context, contractAddress, eventSignature string, fromBlock, toBlock uint64) ([]Log, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	contract := common.HexToAddress(contractAddress)
	logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{common.HexToHash(eventSignature)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	out := make([]Log, 0, len(logs))
	for _, l := range logs {
		out = append(out, convertLog(l))
	}
	return out, nil
}

// Close releases the underlying RPC connection.
func (a *EVMAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// submit signs and sends a transaction from the configured key.
func (a *EVMAdapter) submit(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	if a.privateKey == nil {
		return "", fmt.Errorf("no signing key configured for network %s", a.cfg.Name)
	}
	if err := a.wait(ctx); err != nil {
		return "", err
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := a.cfg.GasLimit
	if gasLimit == 0 {
		estimated, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  a.from,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return "", fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = estimated * 120 / 100
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(big.NewInt(a.cfg.ChainID)), a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

func (a *EVMAdapter) call(ctx context.Context, contract string, data []byte) ([]byte, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	to := common.HexToAddress(contract)
	return a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (a *EVMAdapter) callUint256(ctx context.Context, parsed abi.ABI, contract, method string, args ...interface{}) (*big.Int, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := a.call(ctx, contract, data)
	if err != nil {
		return nil, err
	}
	result := new(big.Int)
	result.SetBytes(out)
	return result, nil
}

func (a *EVMAdapter) callNonce(ctx context.Context, method string, data []byte) (uint64, error) {
	out, err := a.call(ctx, a.cfg.EndpointAddress, data)
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", method, err)
	}
	vals, err := a.endpoint.Unpack(method, out)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return vals[0].(uint64), nil
}

func convertReceipt(r *ethtypes.Receipt) *Receipt {
	out := &Receipt{
		TxHash:      r.TxHash.Hex(),
		Status:      ReceiptStatus(r.Status),
		BlockNumber: r.BlockNumber.Uint64(),
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, convertLog(*l))
	}
	return out
}

func convertLog(l ethtypes.Log) Log {
	topics := make([]string, 0, len(l.Topics))
	for _, t := range l.Topics {
		topics = append(topics, t.Hex())
	}
	return Log{Address: l.Address.Hex(), Topics: topics, Data: l.Data}
}
