package ethereum

import (
	"context"
	"fmt"
	"math/big"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/xerr"
)

// Transfer 托管转账网关
// Pull: transferFrom(from -> 托管)，先查 allowance
// Push: ERC20 transfer 或原生币转账 (EIP-1559)
type Transfer struct {
	client *Client
}

var _ domain.TransferGateway = (*Transfer)(nil)

func NewTransfer(client *Client) *Transfer {
	return &Transfer{client: client}
}

// Pull 从用户地址划转代币到托管账户
// 原生币的价值随请求原子到达，不走这里 (见 LedgerService.Deposit)
func (t *Transfer) Pull(ctx context.Context, from, assetID string, amount decimal.Decimal) error {
	token := common.HexToAddress(assetID)
	owner := common.HexToAddress(from)

	// 先查授权额度，额度不足直接拒绝，省一笔注定失败的交易
	allowance, err := t.allowance(ctx, token, owner)
	if err != nil {
		return xerr.Newf(xerr.TransferFailed, "query allowance failed: %v", err)
	}
	if allowance.Cmp(amount.BigInt()) < 0 {
		return xerr.Newf(xerr.InsufficientAllowance,
			"allowance %s < amount %s", allowance.String(), amount.String())
	}

	data, err := t.client.erc20ABI.Pack("transferFrom", owner, t.client.custody, amount.BigInt())
	if err != nil {
		return xerr.Newf(xerr.TransferFailed, "pack transferFrom failed: %v", err)
	}

	txHash, err := t.send(ctx, token, big.NewInt(0), data)
	if err != nil {
		return xerr.Newf(xerr.TransferFailed, "pull failed: %v", err)
	}

	logger.Info(ctx, "代币已划转入托管",
		zap.String("token", assetID),
		zap.String("from", from),
		zap.String("amount", amount.String()),
		zap.String("tx", txHash))
	return nil
}

// Push 从托管账户划转到收款地址；收款方是任意外部代码，调用方必须先提交账本
func (t *Transfer) Push(ctx context.Context, to, assetID string, amount decimal.Decimal) (string, error) {
	var (
		txHash string
		err    error
	)
	if assetID == domain.NativeAssetID {
		// === 原生币转账 ===
		txHash, err = t.send(ctx, common.HexToAddress(to), amount.BigInt(), nil)
	} else {
		// === ERC20 代币转账 ===
		var data []byte
		data, err = t.client.erc20ABI.Pack("transfer", common.HexToAddress(to), amount.BigInt())
		if err != nil {
			return "", xerr.Newf(xerr.TransferFailed, "pack transfer failed: %v", err)
		}
		txHash, err = t.send(ctx, common.HexToAddress(assetID), big.NewInt(0), data)
	}
	if err != nil {
		return "", xerr.Newf(xerr.TransferFailed, "push failed: %v", err)
	}

	logger.Info(ctx, "托管转出已广播",
		zap.String("asset", assetID),
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("tx", txHash))
	return txHash, nil
}

// send 构建 EIP-1559 交易，签名并广播
func (t *Transfer) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	if t.client.privateKey == nil {
		return "", fmt.Errorf("no signing key configured")
	}

	nonce, err := t.client.eth.PendingNonceAt(ctx, t.client.custody)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	// A. 建议小费 (Tip)
	gasTipCap, err := t.client.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas tip: %w", err)
	}
	// B. 当前区块头，拿 BaseFee
	head, err := t.client.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		// 兼容旧链
		baseFee = big.NewInt(0)
	}
	// C. MaxFeePerGas = (2 * BaseFee) + Tip，防止下个块 BaseFee 上涨导致交易被丢弃
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), gasTipCap)

	// D. 估算 Gas Limit，失败时退回安全值
	gasLimit, err := t.client.eth.EstimateGas(ctx, gethereum.CallMsg{
		From:  t.client.custody,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		gasLimit = 21000
		if len(data) > 0 {
			gasLimit = 100000
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.client.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(t.client.chainID), t.client.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign failed: %w", err)
	}
	if err := t.client.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("broadcast failed: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

func (t *Transfer) allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	input, err := t.client.erc20ABI.Pack("allowance", owner, t.client.custody)
	if err != nil {
		return nil, err
	}
	ret, err := t.client.eth.CallContract(ctx, gethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	out, err := t.client.erc20ABI.Unpack("allowance", ret)
	if err != nil {
		return nil, err
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", out[0])
	}
	return allowance, nil
}
